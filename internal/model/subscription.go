package model

import (
	"fmt"
	"time"
)

// UserFeedSubscription 每个 (账户, 来源) 一条,取消订阅为软删除
type UserFeedSubscription struct {
	ID               string            `gorm:"primaryKey;size:64" json:"id"`
	AccountID        string            `gorm:"size:64;index;not null" json:"account_id"`
	FeedSourceType   FeedSourceType    `gorm:"size:32;index;not null" json:"feed_source_type"`
	Title            string            `gorm:"size:255" json:"title"`
	URL              string            `gorm:"size:2048;index" json:"url,omitempty"`
	ChannelID        string            `gorm:"size:128" json:"channel_id,omitempty"`
	IntervalSeconds  int64             `json:"interval_seconds,omitempty"`
	IsActive         bool              `gorm:"index" json:"is_active"`
	UnsubscribedTime *time.Time        `json:"unsubscribed_time,omitempty"`
	DeliverySchedule *DeliverySchedule `gorm:"serializer:json" json:"delivery_schedule,omitempty"`
	LastEmittedTime  *time.Time        `json:"last_emitted_time,omitempty"`
	CreatedTime      time.Time         `gorm:"not null" json:"created_time"`
	LastUpdatedTime  time.Time         `gorm:"not null" json:"last_updated_time"`
}

// Validate 校验类型相关的标识字段
func (s *UserFeedSubscription) Validate() error {
	switch s.FeedSourceType {
	case SourceRSS:
		if s.URL == "" {
			return fmt.Errorf("rss subscription requires url")
		}
	case SourceYouTubeChannel:
		if s.ChannelID == "" {
			return fmt.Errorf("youtube subscription requires channel id")
		}
	case SourceInterval:
		if s.IntervalSeconds <= 0 {
			return fmt.Errorf("interval subscription requires positive interval, got %d", s.IntervalSeconds)
		}
	default:
		return fmt.Errorf("unsupported subscription type %q", s.FeedSourceType)
	}
	if s.DeliverySchedule != nil {
		return s.DeliverySchedule.Validate()
	}
	return nil
}

// Interval 间隔订阅的发射周期
func (s *UserFeedSubscription) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}
