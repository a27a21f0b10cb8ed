package service

import (
	"context"
	"time"

	"go-feeds/internal/model"
)

type StatusItemStore interface {
	CountByImportStatus(ctx context.Context) (map[model.ImportStatus]int64, error)
}

type StatusSubscriptionStore interface {
	CountActive(ctx context.Context) (total, active int64, err error)
}

type StatusEventCounter interface {
	CountByName(ctx context.Context, name string) (int64, error)
}

type StatusService struct {
	items  StatusItemStore
	subs   StatusSubscriptionStore
	events StatusEventCounter
}

type SystemStatus struct {
	// 条目统计
	TotalItems      int64 `json:"total_items"`
	NewItems        int64 `json:"new_items"`
	ProcessingItems int64 `json:"processing_items"`
	FailedItems     int64 `json:"failed_items"`
	CompletedItems  int64 `json:"completed_items"`
	ImportedEvents  int64 `json:"imported_events"`

	// 订阅统计
	TotalSubscriptions  int64 `json:"total_subscriptions"`
	ActiveSubscriptions int64 `json:"active_subscriptions"`

	// 定时任务信息
	NextIntervalRun time.Time `json:"next_interval_run"`
}

func NewStatusService(items StatusItemStore, subs StatusSubscriptionStore, events StatusEventCounter) *StatusService {
	return &StatusService{items: items, subs: subs, events: events}
}

// GetSystemStatus 获取系统状态
func (s *StatusService) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	counts, err := s.items.CountByImportStatus(ctx)
	if err != nil {
		return nil, err
	}
	status := &SystemStatus{
		NewItems:        counts[model.ImportNew],
		ProcessingItems: counts[model.ImportProcessing],
		FailedItems:     counts[model.ImportFailed],
		CompletedItems:  counts[model.ImportCompleted],
	}
	for _, n := range counts {
		status.TotalItems += n
	}

	status.TotalSubscriptions, status.ActiveSubscriptions, err = s.subs.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	status.ImportedEvents, err = s.events.CountByName(ctx, model.EventItemImported)
	if err != nil {
		return nil, err
	}
	return status, nil
}
