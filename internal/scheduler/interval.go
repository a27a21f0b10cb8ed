package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"go-feeds/internal/model"
	"go-feeds/internal/schedule"
	"go-feeds/internal/store"
)

type IntervalSubscriptions interface {
	ListActiveByType(ctx context.Context, t model.FeedSourceType) ([]model.UserFeedSubscription, error)
	Update(ctx context.Context, id string, patch *model.UserFeedSubscription, columns ...string) error
}

type ItemCreator interface {
	Create(ctx context.Context, item *model.FeedItem) error
}

// RunResult 一次间隔检查的统计
type RunResult struct {
	TotalCount   int `json:"total_count"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// IntervalEmitter 为到期的间隔订阅生成条目
type IntervalEmitter struct {
	subs   IntervalSubscriptions
	items  ItemCreator
	logger *slog.Logger
	now    func() time.Time
	newID  func(subscriptionID string, anchor time.Time) string
}

func NewIntervalEmitter(subs IntervalSubscriptions, items ItemCreator, logger *slog.Logger) *IntervalEmitter {
	return &IntervalEmitter{
		subs:   subs,
		items:  items,
		logger: logger,
		now:    time.Now,
		newID:  emissionID,
	}
}

// emissionID 同一订阅的同一个到期周期得到相同的条目ID
func emissionID(subscriptionID string, anchor time.Time) string {
	key := subscriptionID + "@" + anchor.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

// Run 检查所有活跃的间隔订阅。单个订阅失败只计数,只有查询订阅失败才返回错误。
// TotalCount 是到期的订阅数。
func (e *IntervalEmitter) Run(ctx context.Context) (RunResult, error) {
	var result RunResult

	subs, err := e.subs.ListActiveByType(ctx, model.SourceInterval)
	if err != nil {
		return result, fmt.Errorf("list interval subscriptions: %w", err)
	}

	now := e.now()
	for i := range subs {
		sub := &subs[i]
		anchor := sub.CreatedTime
		if sub.LastEmittedTime != nil {
			anchor = *sub.LastEmittedTime
		}
		if !schedule.EmissionDue(now, anchor, sub.Interval()) {
			continue
		}

		result.TotalCount++
		if err := e.emit(ctx, sub, anchor, now); err != nil {
			result.FailureCount++
			e.logger.Error("interval emission failed", "subscription_id", sub.ID, "error", err)
			continue
		}
		result.SuccessCount++
	}

	e.logger.Info("interval run finished",
		"total", result.TotalCount, "success", result.SuccessCount, "failure", result.FailureCount)
	return result, nil
}

func (e *IntervalEmitter) emit(ctx context.Context, sub *model.UserFeedSubscription, anchor, now time.Time) error {
	item := &model.FeedItem{
		ID:        e.newID(sub.ID, anchor),
		AccountID: sub.AccountID,
		FeedSource: model.FeedSource{
			Type:           model.SourceInterval,
			SubscriptionID: sub.ID,
		},
		ContentKind:     model.KindInterval,
		Title:           fmt.Sprintf("%s - %s", sub.Title, now.UTC().Format(time.RFC3339)),
		ImportState:     model.NewImportState(now),
		TriageStatus:    model.TriageUntriaged,
		TagIDs:          map[string]bool{"unread": true},
		CreatedTime:     now,
		LastUpdatedTime: now,
	}
	err := e.items.Create(ctx, item)
	switch {
	case errors.Is(err, store.ErrAlreadyExists):
		// 上次运行已创建条目但没能记录发射时间
		e.logger.Warn("interval item already emitted for this period", "subscription_id", sub.ID, "item_id", item.ID)
	case err != nil:
		return fmt.Errorf("create interval item: %w", err)
	}
	if err := e.subs.Update(ctx, sub.ID, &model.UserFeedSubscription{LastEmittedTime: &now}, "last_emitted_time"); err != nil {
		return fmt.Errorf("record emission: %w", err)
	}
	return nil
}
