package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-feeds/internal/model"
	"go-feeds/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSubs struct {
	subs      []model.UserFeedSubscription
	listErr   error
	updateErr error
	emitted   map[string]time.Time
}

func (f *fakeSubs) ListActiveByType(_ context.Context, t model.FeedSourceType) ([]model.UserFeedSubscription, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.UserFeedSubscription
	for _, s := range f.subs {
		if s.FeedSourceType == t && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) Update(_ context.Context, id string, patch *model.UserFeedSubscription, _ ...string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.emitted == nil {
		f.emitted = map[string]time.Time{}
	}
	f.emitted[id] = *patch.LastEmittedTime
	return nil
}

type fakeItems struct {
	failFor map[string]bool
	created []*model.FeedItem
}

func (f *fakeItems) Create(_ context.Context, item *model.FeedItem) error {
	if f.failFor[item.FeedSource.SubscriptionID] {
		return errors.New("store unavailable")
	}
	for _, existing := range f.created {
		if existing.ID == item.ID {
			return fmt.Errorf("create feed item %s: %w", item.ID, store.ErrAlreadyExists)
		}
	}
	f.created = append(f.created, item)
	return nil
}

var base = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func intervalSub(id string, seconds int64, created time.Time) model.UserFeedSubscription {
	return model.UserFeedSubscription{
		ID:              id,
		AccountID:       "acct-1",
		FeedSourceType:  model.SourceInterval,
		Title:           "Ticker " + id,
		IntervalSeconds: seconds,
		IsActive:        true,
		CreatedTime:     created,
	}
}

func newEmitter(subs *fakeSubs, items *fakeItems, now time.Time) *IntervalEmitter {
	e := NewIntervalEmitter(subs, items, discardLogger())
	e.now = func() time.Time { return now }
	return e
}

func TestIntervalEmitter_FailureIsolation(t *testing.T) {
	subs := &fakeSubs{subs: []model.UserFeedSubscription{
		intervalSub("s1", 3600, base.Add(-2*time.Hour)),
		intervalSub("s2", 3600, base.Add(-2*time.Hour)),
		intervalSub("s3", 3600, base.Add(-2*time.Hour)),
	}}
	items := &fakeItems{failFor: map[string]bool{"s2": true}}

	result, err := newEmitter(subs, items, base).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{TotalCount: 3, SuccessCount: 2, FailureCount: 1}, result)
	require.Len(t, items.created, 2)
	assert.Equal(t, "s3", items.created[1].FeedSource.SubscriptionID)
	assert.Contains(t, subs.emitted, "s3")
	assert.NotContains(t, subs.emitted, "s2")
}

func TestIntervalEmitter_OnlyDueSubscriptionsEmit(t *testing.T) {
	lastHour := base.Add(-time.Hour)
	recent := base.Add(-10 * time.Minute)
	due := intervalSub("due", 3600, base.Add(-48*time.Hour))
	due.LastEmittedTime = &lastHour
	notDue := intervalSub("not-due", 3600, base.Add(-48*time.Hour))
	notDue.LastEmittedTime = &recent
	fresh := intervalSub("fresh", 3600, base.Add(-30*time.Minute))
	inactive := intervalSub("inactive", 60, base.Add(-48*time.Hour))
	inactive.IsActive = false

	subs := &fakeSubs{subs: []model.UserFeedSubscription{due, notDue, fresh, inactive}}
	items := &fakeItems{}

	result, err := newEmitter(subs, items, base).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{TotalCount: 1, SuccessCount: 1}, result)
	require.Len(t, items.created, 1)
	item := items.created[0]
	assert.Equal(t, model.KindInterval, item.ContentKind)
	assert.Equal(t, model.SourceInterval, item.FeedSource.Type)
	assert.Equal(t, "due", item.FeedSource.SubscriptionID)
	assert.Equal(t, model.ImportNew, item.ImportState.Status)
	assert.True(t, strings.HasPrefix(item.Title, "Ticker due - 2024-01-01T12:00:00Z"))
	assert.Equal(t, base, subs.emitted["due"])
}

func TestIntervalEmitter_FailedAnchorWriteDoesNotDuplicate(t *testing.T) {
	subs := &fakeSubs{
		subs:      []model.UserFeedSubscription{intervalSub("s1", 3600, base)},
		updateErr: errors.New("db locked"),
	}
	items := &fakeItems{}

	first, err := newEmitter(subs, items, base.Add(2*time.Hour)).Run(context.Background())
	require.NoError(t, err)
	second, err := newEmitter(subs, items, base.Add(2*time.Hour+5*time.Minute)).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RunResult{TotalCount: 1, FailureCount: 1}, first)
	assert.Equal(t, RunResult{TotalCount: 1, FailureCount: 1}, second)
	assert.Len(t, items.created, 1)

	// 发射时间写入恢复后,同一周期只记录发射,不再新建条目
	subs.updateErr = nil
	third, err := newEmitter(subs, items, base.Add(2*time.Hour+10*time.Minute)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunResult{TotalCount: 1, SuccessCount: 1}, third)
	assert.Len(t, items.created, 1)
	assert.Equal(t, base.Add(2*time.Hour+10*time.Minute), subs.emitted["s1"])
}

func TestEmissionIDIsStablePerPeriod(t *testing.T) {
	assert.Equal(t, emissionID("s1", base), emissionID("s1", base))
	assert.Equal(t, emissionID("s1", base), emissionID("s1", base.In(time.FixedZone("UTC+8", 8*3600))))
	assert.NotEqual(t, emissionID("s1", base), emissionID("s1", base.Add(time.Hour)))
	assert.NotEqual(t, emissionID("s1", base), emissionID("s2", base))
}

func TestIntervalEmitter_ListFailure(t *testing.T) {
	subs := &fakeSubs{listErr: errors.New("db down")}
	_, err := newEmitter(subs, &fakeItems{}, base).Run(context.Background())
	assert.ErrorContains(t, err, "list interval subscriptions")
}

type countingJob struct {
	mu    sync.Mutex
	runs  int
	inRun int
	max   int
}

func (j *countingJob) Run(context.Context) (RunResult, error) {
	j.mu.Lock()
	j.runs++
	j.inRun++
	if j.inRun > j.max {
		j.max = j.inRun
	}
	j.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	j.mu.Lock()
	j.inRun--
	j.mu.Unlock()
	return RunResult{TotalCount: 1, SuccessCount: 1}, nil
}

func TestScheduler_RunNowSerializesRuns(t *testing.T) {
	job := &countingJob{}
	s := NewScheduler(job, "*/5 * * * *", discardLogger())

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.RunNow(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, job.runs)
	assert.Equal(t, 1, job.max)
}

func TestScheduler_StartReportsNextRun(t *testing.T) {
	s := NewScheduler(&countingJob{}, "*/5 * * * *", discardLogger())
	require.NoError(t, s.Start())
	defer s.Stop()

	next := s.GetNextRunTime()
	assert.True(t, next.After(time.Now()))
	assert.Zero(t, next.Minute()%5)
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(&countingJob{}, "not a cron", discardLogger())
	assert.Error(t, s.Start())
}
