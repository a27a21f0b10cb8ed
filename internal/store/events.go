package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"go-feeds/internal/model"
)

// EventLog 导入事件记录
type EventLog struct {
	db *gorm.DB
}

func NewEventLog(db *gorm.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) LogEvent(ctx context.Context, ev *model.ImportEvent) error {
	if err := l.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("log %s event: %w", ev.Name, err)
	}
	return nil
}

func (l *EventLog) CountByName(ctx context.Context, name string) (int64, error) {
	var n int64
	if err := l.db.WithContext(ctx).Model(&model.ImportEvent{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s events: %w", name, err)
	}
	return n, nil
}
