// Package trigger 把存储写入事件转换为导入任务
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-feeds/internal/model"
	"go-feeds/internal/store"
)

// 导入结果写入的超时,不受导入 context 取消的影响
const resultWriteTimeout = 10 * time.Second

// 租约过期时写入的错误信息
const leaseExpiredMessage = "import lease expired"

// ItemStore 触发器需要的存储能力
type ItemStore interface {
	GetByID(ctx context.Context, id string) (*model.FeedItem, error)
	ClaimImport(ctx context.Context, id string, expected, next model.ImportState) error
	QueryByField(ctx context.Context, field string, value any) ([]model.FeedItem, error)
}

type Importer interface {
	Import(ctx context.Context, item *model.FeedItem) error
}

// Runner 实现 store.ItemObserver。
// 新建的 new 条目和 should_fetch 由 false 变为 true 的条目会在后台导入。
type Runner struct {
	items    ItemStore
	importer Importer
	retry    RetryPolicy
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
	after func(d time.Duration, fn func())

	// ctx 供导入使用,timers 控制等待中的重试
	ctx          context.Context
	cancel       context.CancelFunc
	timers       context.Context
	cancelTimers context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ store.ItemObserver = (*Runner)(nil)

func NewRunner(items ItemStore, importer Importer, retry RetryPolicy, logger *slog.Logger) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	timers, cancelTimers := context.WithCancel(ctx)
	r := &Runner{
		items:        items,
		importer:     importer,
		retry:        retry,
		logger:       logger,
		now:          time.Now,
		newID:        uuid.NewString,
		ctx:          ctx,
		cancel:       cancel,
		timers:       timers,
		cancelTimers: cancelTimers,
	}
	r.after = r.schedule
	return r
}

func (r *Runner) OnItemCreated(_ context.Context, item model.FeedItem) {
	if item.ImportState.Status != model.ImportNew {
		return
	}
	r.spawn(item.ID)
}

func (r *Runner) OnItemUpdated(_ context.Context, before, after model.FeedItem) {
	if !model.ReimportTriggered(before.ImportState, after.ImportState) {
		return
	}
	r.spawn(after.ID)
}

func (r *Runner) spawn(id string) {
	ok := r.goTracked(func() {
		if err := r.Process(r.ctx, id); err != nil {
			r.logger.Error("import failed", "item_id", id, "error", err)
		}
	})
	if !ok {
		r.logger.Warn("runner closed, import dropped", "item_id", id)
	}
}

func (r *Runner) goTracked(fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
	return true
}

// Process 领取租约、执行导入并写回 completed 或 failed。
// 租约已被其他尝试持有时直接返回 nil。返回的错误即导入错误本身,状态已经写入。
func (r *Runner) Process(ctx context.Context, id string) error {
	item, err := r.items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	expected := item.ImportState
	if !expected.CanStart() {
		r.logger.Debug("import not startable, skipping", "item_id", id, "status", expected.Status)
		return nil
	}

	started := expected.Started(r.now(), r.newID())
	if err := r.items.ClaimImport(ctx, id, expected, started); err != nil {
		if store.IsImportConflict(err) {
			r.logger.Debug("import lease taken, skipping", "item_id", id)
			return nil
		}
		return fmt.Errorf("claim import: %w", err)
	}
	item.ImportState = started
	logger := r.logger.With("item_id", id, "attempt_id", started.AttemptID)

	importErr := r.importer.Import(ctx, item)

	var next model.ImportState
	if importErr == nil {
		next = started.Completed(r.now())
	} else {
		next = started.Failed(r.now(), importErr.Error())
	}
	// 关闭时导入 context 会被取消,结果仍需写入,否则条目会停在 processing
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resultWriteTimeout)
	defer cancel()
	if err := r.items.ClaimImport(writeCtx, id, started, next); err != nil {
		if store.IsImportConflict(err) {
			logger.Warn("import lease lost before result was written", "error", err)
			return importErr
		}
		return errors.Join(importErr, fmt.Errorf("write import result: %w", err))
	}

	if importErr != nil {
		r.scheduleRetry(id, next)
		return importErr
	}
	logger.Info("import completed")
	return nil
}

func (r *Runner) scheduleRetry(id string, failed model.ImportState) {
	delay, ok := r.retry.Next(failed.AttemptCount)
	if !ok {
		r.logger.Warn("giving up on import", "item_id", id, "attempts", failed.AttemptCount)
		return
	}
	r.retryAfter(id, failed, delay)
}

func (r *Runner) retryAfter(id string, failed model.ImportState, delay time.Duration) {
	r.logger.Info("import retry scheduled", "item_id", id, "attempt", failed.AttemptCount, "delay", delay)
	r.after(delay, func() {
		if err := r.requestReimport(r.ctx, id, failed.AttemptID); err != nil {
			r.logger.Warn("retry request failed", "item_id", id, "error", err)
		}
	})
}

func (r *Runner) schedule(d time.Duration, fn func()) {
	r.goTracked(func() {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-r.timers.Done():
		case <-t.C:
			fn()
		}
	})
}

// RequestReimport 重新排队一个已结束的条目,写入后由 OnItemUpdated 触发导入
func (r *Runner) RequestReimport(ctx context.Context, id string) error {
	return r.requestReimport(ctx, id, "")
}

// attemptID 非空时只在条目仍停留在该次失败的尝试上才重新排队
func (r *Runner) requestReimport(ctx context.Context, id, attemptID string) error {
	item, err := r.items.GetByID(ctx, id)
	if err != nil {
		return err
	}
	state := item.ImportState
	switch state.Status {
	case model.ImportFailed, model.ImportCompleted:
	case model.ImportProcessing:
		if !r.leaseExpired(state) {
			return fmt.Errorf("feed item %s is %s: %w", id, state.Status, store.ErrImportInProgress)
		}
		if state, err = r.expireLease(ctx, id, state); err != nil {
			return err
		}
	case model.ImportNew:
		return fmt.Errorf("feed item %s is %s: %w", id, state.Status, store.ErrImportInProgress)
	default:
		panic(fmt.Sprintf("unknown import status %q", state.Status))
	}
	if attemptID != "" && state.AttemptID != attemptID {
		return nil
	}
	if state.ShouldFetch {
		return nil
	}
	if err := r.items.ClaimImport(ctx, id, state, state.ReimportRequested(r.now())); err != nil {
		return fmt.Errorf("request reimport: %w", err)
	}
	return nil
}

// leaseExpired processing 状态持续超过 LeaseTimeout 时视为尝试已丢失
func (r *Runner) leaseExpired(state model.ImportState) bool {
	if state.Status != model.ImportProcessing || r.retry.LeaseTimeout <= 0 || state.ImportStartedTime == nil {
		return false
	}
	return r.now().Sub(*state.ImportStartedTime) >= r.retry.LeaseTimeout
}

// expireLease 把过期的 processing 条目标记为 failed
func (r *Runner) expireLease(ctx context.Context, id string, state model.ImportState) (model.ImportState, error) {
	failed := state.Failed(r.now(), leaseExpiredMessage)
	if err := r.items.ClaimImport(ctx, id, state, failed); err != nil {
		return state, fmt.Errorf("expire import lease: %w", err)
	}
	r.logger.Warn("import lease expired", "item_id", id, "attempt_id", state.AttemptID)
	return failed, nil
}

// RecoverResult 启动恢复的统计
type RecoverResult struct {
	Started int `json:"started"`
	Retried int `json:"retried"`
	Expired int `json:"expired"`
}

// Recover 启动时补齐写入触发器可能漏掉的工作:
// 恢复失败条目的重试,导入仍在排队的条目,并回收过期的租约。
func (r *Runner) Recover(ctx context.Context) (RecoverResult, error) {
	var res RecoverResult

	failed, err := r.items.QueryByField(ctx, "import_status", model.ImportFailed)
	if err != nil {
		return res, fmt.Errorf("recover failed imports: %w", err)
	}
	for _, item := range failed {
		state := item.ImportState
		if state.ShouldFetch {
			continue
		}
		delay, ok := r.retry.Next(state.AttemptCount)
		if !ok {
			continue
		}
		if state.ImportFailedTime != nil {
			delay = max(0, delay-r.now().Sub(*state.ImportFailedTime))
		}
		r.retryAfter(item.ID, state, delay)
		res.Retried++
	}

	pending, err := r.items.QueryByField(ctx, "import_should_fetch", true)
	if err != nil {
		return res, fmt.Errorf("recover pending imports: %w", err)
	}
	for _, item := range pending {
		if item.ImportState.CanStart() {
			r.spawn(item.ID)
			res.Started++
		}
	}

	processing, err := r.items.QueryByField(ctx, "import_status", model.ImportProcessing)
	if err != nil {
		return res, fmt.Errorf("recover stale imports: %w", err)
	}
	for _, item := range processing {
		if !r.leaseExpired(item.ImportState) {
			continue
		}
		next, err := r.expireLease(ctx, item.ID, item.ImportState)
		if err != nil {
			if store.IsImportConflict(err) {
				continue
			}
			return res, err
		}
		res.Expired++
		r.scheduleRetry(item.ID, next)
	}

	r.logger.Info("import recovery finished", "started", res.Started, "retried", res.Retried, "expired", res.Expired)
	return res, nil
}

// Wait 等待所有后台任务结束,包括等待中的重试
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown 停止接收新任务,丢弃等待中的重试并等待进行中的导入。
// ctx 到期时取消进行中的导入。
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancelTimers()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	defer r.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
