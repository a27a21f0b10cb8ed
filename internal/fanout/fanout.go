// Package fanout 并发执行一组固定的独立操作。
//
// Settle 等待全部完成并逐个返回结果,单个失败不会取消其他操作;
// All 返回第一个错误并取消共享的 context,用于每个操作都必须成功的阶段。
package fanout

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Result 单个操作的结果
type Result[T any] struct {
	Value T
	Err   error
}

func (r Result[T]) OK() bool { return r.Err == nil }

// Outcomes 按调用顺序保存结果
type Outcomes[T any] struct {
	Results   []Result[T]
	AnyFailed bool
}

// FirstError 按调用顺序返回第一个错误
func (o Outcomes[T]) FirstError() error {
	for _, r := range o.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// Settle 并发执行 fns 并等待全部完成
func Settle[T any](ctx context.Context, fns ...func(context.Context) (T, error)) Outcomes[T] {
	results := make([]Result[T], len(fns))
	done := make(chan struct{}, len(fns))
	for i, fn := range fns {
		go func() {
			defer func() { done <- struct{}{} }()
			v, err := fn(ctx)
			results[i] = Result[T]{Value: v, Err: err}
		}()
	}
	for range fns {
		<-done
	}

	out := Outcomes[T]{Results: results}
	for _, r := range results {
		if r.Err != nil {
			out.AnyFailed = true
			break
		}
	}
	return out
}

// Pair 两个不同返回类型的操作,语义同 Settle
func Pair[A, B any](
	ctx context.Context,
	a func(context.Context) (A, error),
	b func(context.Context) (B, error),
) (Result[A], Result[B]) {
	var ra Result[A]
	var rb Result[B]
	done := make(chan struct{})
	go func() {
		defer close(done)
		v, err := b(ctx)
		rb = Result[B]{Value: v, Err: err}
	}()
	v, err := a(ctx)
	ra = Result[A]{Value: v, Err: err}
	<-done
	return ra, rb
}

// All 并发执行 fns,任意一个失败即取消其余操作并返回该错误
func All(ctx context.Context, fns ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range fns {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}
