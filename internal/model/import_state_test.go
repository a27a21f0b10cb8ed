package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, time.March, 10, 12, 0, 0, 0, time.UTC)

func TestNewImportState(t *testing.T) {
	s := NewImportState(t0)
	assert.Equal(t, ImportNew, s.Status)
	assert.True(t, s.ShouldFetch)
	require.NotNil(t, s.LastImportRequestedTime)
	assert.Equal(t, t0, *s.LastImportRequestedTime)
	assert.True(t, s.CanStart())
}

func TestImportLifecycle(t *testing.T) {
	started := NewImportState(t0).Started(t0.Add(time.Second), "attempt-1")
	assert.Equal(t, ImportProcessing, started.Status)
	assert.False(t, started.ShouldFetch)
	assert.Equal(t, "attempt-1", started.AttemptID)
	assert.Nil(t, started.LastSuccessfulImportTime)
	assert.False(t, started.CanStart())

	done := started.Completed(t0.Add(2 * time.Second))
	assert.Equal(t, ImportCompleted, done.Status)
	assert.False(t, done.ShouldFetch)
	require.NotNil(t, done.LastSuccessfulImportTime)
	assert.Equal(t, t0.Add(2*time.Second), *done.LastSuccessfulImportTime)
	assert.False(t, done.CanStart())

	requeued := done.ReimportRequested(t0.Add(time.Hour))
	assert.Equal(t, ImportCompleted, requeued.Status)
	assert.True(t, requeued.ShouldFetch)
	assert.Equal(t, t0.Add(time.Hour), *requeued.LastImportRequestedTime)
	assert.True(t, requeued.CanStart())

	restarted := requeued.Started(t0.Add(2*time.Hour), "attempt-2")
	require.NotNil(t, restarted.LastSuccessfulImportTime)
	assert.Equal(t, t0.Add(2*time.Second), *restarted.LastSuccessfulImportTime)

	failed := restarted.Failed(t0.Add(3*time.Hour), "boom")
	assert.Equal(t, ImportFailed, failed.Status)
	assert.False(t, failed.ShouldFetch)
	assert.Equal(t, "boom", failed.ErrorMessage)
	assert.Equal(t, t0.Add(3*time.Hour), *failed.ImportFailedTime)
	assert.Equal(t, t0.Add(2*time.Second), *failed.LastSuccessfulImportTime)
	assert.Equal(t, 1, failed.AttemptCount)
	assert.False(t, failed.CanStart())
}

func TestFailedAttemptCountResetsOnSuccess(t *testing.T) {
	s := NewImportState(t0).Started(t0, "a").Failed(t0, "x")
	s = s.ReimportRequested(t0).Started(t0, "b").Failed(t0, "y")
	assert.Equal(t, 2, s.AttemptCount)

	s = s.ReimportRequested(t0).Started(t0, "c")
	assert.Equal(t, 2, s.AttemptCount)
	s = s.Completed(t0)
	assert.Equal(t, 0, s.AttemptCount)
}

func TestIllegalTransitionsPanic(t *testing.T) {
	processing := NewImportState(t0).Started(t0, "a")
	completed := processing.Completed(t0)
	failed := processing.Failed(t0, "err")

	assert.Panics(t, func() { processing.Started(t0, "b") })
	assert.Panics(t, func() { completed.Started(t0, "b") })
	assert.Panics(t, func() { failed.Started(t0, "b") })
	assert.Panics(t, func() { NewImportState(t0).Completed(t0) })
	assert.Panics(t, func() { NewImportState(t0).Failed(t0, "err") })
	assert.Panics(t, func() { completed.Completed(t0) })
	assert.Panics(t, func() { failed.Failed(t0, "again") })
	assert.Panics(t, func() { NewImportState(t0).ReimportRequested(t0) })
	assert.Panics(t, func() { processing.ReimportRequested(t0) })
	assert.Panics(t, func() { ImportState{Status: "bogus"}.CanStart() })
}

func TestReimportTriggered(t *testing.T) {
	completed := NewImportState(t0).Started(t0, "a").Completed(t0)

	assert.True(t, ReimportTriggered(completed, completed.ReimportRequested(t0)))
	assert.False(t, ReimportTriggered(completed, completed))

	requeued := completed.ReimportRequested(t0)
	assert.False(t, ReimportTriggered(requeued, requeued.ReimportRequested(t0.Add(time.Minute))))
	assert.False(t, ReimportTriggered(requeued, requeued.Started(t0, "b")))
}

func TestFeedItemTags(t *testing.T) {
	item := &FeedItem{}
	assert.False(t, item.HasTag("starred"))

	item.SetTag("starred", true)
	assert.True(t, item.HasTag("starred"))

	item.SetTag("starred", false)
	assert.False(t, item.HasTag("starred"))
	_, present := item.TagIDs["starred"]
	assert.False(t, present)
}

func TestDeliveryScheduleValidate(t *testing.T) {
	assert.NoError(t, Immediate().Validate())
	assert.NoError(t, Never().Validate())
	assert.NoError(t, EveryNHours(3).Validate())
	assert.Error(t, EveryNHours(0).Validate())
	assert.Error(t, DaysAndTimesOfWeek(nil, []TimeOfDay{{Hour: 9}}).Validate())
	assert.Error(t, DaysAndTimesOfWeek([]time.Weekday{time.Monday}, nil).Validate())
	assert.Error(t, DaysAndTimesOfWeek([]time.Weekday{time.Monday}, []TimeOfDay{{Hour: 24}}).Validate())
	assert.NoError(t, DaysAndTimesOfWeek([]time.Weekday{time.Monday}, []TimeOfDay{{Hour: 23, Minute: 59}}).Validate())
	assert.Error(t, (&DeliverySchedule{Kind: "weekly"}).Validate())
}

func TestSubscriptionValidate(t *testing.T) {
	assert.NoError(t, (&UserFeedSubscription{FeedSourceType: SourceRSS, URL: "https://example.com/feed"}).Validate())
	assert.Error(t, (&UserFeedSubscription{FeedSourceType: SourceRSS}).Validate())
	assert.Error(t, (&UserFeedSubscription{FeedSourceType: SourceYouTubeChannel}).Validate())
	assert.Error(t, (&UserFeedSubscription{FeedSourceType: SourceInterval}).Validate())
	assert.Error(t, (&UserFeedSubscription{FeedSourceType: SourceApp}).Validate())
	assert.Error(t, (&UserFeedSubscription{
		FeedSourceType:   SourceInterval,
		IntervalSeconds:  60,
		DeliverySchedule: EveryNHours(-1),
	}).Validate())
}

func TestParseContentKind(t *testing.T) {
	kind, err := ParseContentKind("youtube")
	require.NoError(t, err)
	assert.Equal(t, KindYouTube, kind)

	_, err = ParseContentKind("podcast")
	assert.Error(t, err)
}
