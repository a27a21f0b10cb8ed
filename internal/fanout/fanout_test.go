package fanout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleCollectsEveryOutcome(t *testing.T) {
	errBoom := errors.New("boom")
	var finished atomic.Int32

	out := Settle(context.Background(),
		func(context.Context) (string, error) {
			finished.Add(1)
			return "a", nil
		},
		func(context.Context) (string, error) {
			finished.Add(1)
			return "", errBoom
		},
		func(ctx context.Context) (string, error) {
			time.Sleep(20 * time.Millisecond)
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			finished.Add(1)
			return "c", nil
		},
	)

	require.Len(t, out.Results, 3)
	assert.True(t, out.AnyFailed)
	assert.Equal(t, int32(3), finished.Load())
	assert.Equal(t, "a", out.Results[0].Value)
	assert.True(t, out.Results[0].OK())
	assert.ErrorIs(t, out.Results[1].Err, errBoom)
	assert.Equal(t, "c", out.Results[2].Value)
	assert.ErrorIs(t, out.FirstError(), errBoom)
}

func TestSettleAllSucceed(t *testing.T) {
	out := Settle(context.Background(),
		func(context.Context) (int, error) { return 1, nil },
		func(context.Context) (int, error) { return 2, nil },
	)
	assert.False(t, out.AnyFailed)
	assert.NoError(t, out.FirstError())
}

func TestPairRunsConcurrently(t *testing.T) {
	start := make(chan struct{})
	a, b := Pair(context.Background(),
		func(context.Context) (int, error) {
			<-start
			return 1, nil
		},
		func(context.Context) (string, error) {
			close(start)
			return "", errors.New("b failed")
		},
	)
	assert.Equal(t, 1, a.Value)
	assert.True(t, a.OK())
	assert.Error(t, b.Err)
}

func TestAllPropagatesFirstErrorAndCancels(t *testing.T) {
	errBoom := errors.New("boom")
	err := All(context.Background(),
		func(context.Context) error { return errBoom },
		func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return errors.New("not cancelled")
			}
		},
	)
	assert.ErrorIs(t, err, errBoom)
}

func TestAllSuccess(t *testing.T) {
	var n atomic.Int32
	err := All(context.Background(),
		func(context.Context) error { n.Add(1); return nil },
		func(context.Context) error { n.Add(1); return nil },
	)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), n.Load())
}
