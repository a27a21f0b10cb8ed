package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"go-feeds/internal/model"
)

// SubscriptionStore 订阅记录存储
type SubscriptionStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db, now: time.Now}
}

func (s *SubscriptionStore) GetByID(ctx context.Context, id string) (*model.UserFeedSubscription, error) {
	var sub model.UserFeedSubscription
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", id, notFound(err))
	}
	return &sub, nil
}

// FindByAccountSource 查找同一账户下相同来源的订阅,不存在时返回 nil
func (s *SubscriptionStore) FindByAccountSource(ctx context.Context, sub *model.UserFeedSubscription) (*model.UserFeedSubscription, error) {
	q := s.db.WithContext(ctx).Where("account_id = ? AND feed_source_type = ?", sub.AccountID, sub.FeedSourceType)
	switch sub.FeedSourceType {
	case model.SourceRSS:
		q = q.Where("url = ?", sub.URL)
	case model.SourceYouTubeChannel:
		q = q.Where("channel_id = ?", sub.ChannelID)
	case model.SourceInterval:
		q = q.Where("interval_seconds = ? AND title = ?", sub.IntervalSeconds, sub.Title)
	}
	var found []model.UserFeedSubscription
	if err := q.Limit(1).Find(&found).Error; err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (s *SubscriptionStore) Create(ctx context.Context, sub *model.UserFeedSubscription) error {
	now := s.now()
	if sub.CreatedTime.IsZero() {
		sub.CreatedTime = now
	}
	sub.LastUpdatedTime = now
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("create subscription %s: %w", sub.ID, err)
	}
	return nil
}

// Update 只更新 columns 指定的列
func (s *SubscriptionStore) Update(ctx context.Context, id string, patch *model.UserFeedSubscription, columns ...string) error {
	patch.LastUpdatedTime = s.now()
	res := s.db.WithContext(ctx).
		Model(&model.UserFeedSubscription{}).
		Where("id = ?", id).
		Select(withUpdatedTime(columns)).
		Updates(patch)
	if res.Error != nil {
		return fmt.Errorf("update subscription %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update subscription %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListActiveByType 某类型的全部有效订阅
func (s *SubscriptionStore) ListActiveByType(ctx context.Context, t model.FeedSourceType) ([]model.UserFeedSubscription, error) {
	var subs []model.UserFeedSubscription
	err := s.db.WithContext(ctx).
		Where("feed_source_type = ? AND is_active = ?", t, true).
		Order("created_time").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list active %s subscriptions: %w", t, err)
	}
	return subs, nil
}

func (s *SubscriptionStore) ListByAccount(ctx context.Context, accountID string) ([]model.UserFeedSubscription, error) {
	var subs []model.UserFeedSubscription
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_time").Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", accountID, err)
	}
	return subs, nil
}

func (s *SubscriptionStore) CountActive(ctx context.Context) (total, active int64, err error) {
	db := s.db.WithContext(ctx).Model(&model.UserFeedSubscription{})
	if err = db.Count(&total).Error; err != nil {
		return 0, 0, fmt.Errorf("count subscriptions: %w", err)
	}
	err = s.db.WithContext(ctx).Model(&model.UserFeedSubscription{}).Where("is_active = ?", true).Count(&active).Error
	if err != nil {
		return 0, 0, fmt.Errorf("count active subscriptions: %w", err)
	}
	return total, active, nil
}

// DeleteByAccount 账户注销时硬删除订阅
func (s *SubscriptionStore) DeleteByAccount(ctx context.Context, accountID string) error {
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&model.UserFeedSubscription{}).Error; err != nil {
		return fmt.Errorf("delete subscriptions for %s: %w", accountID, err)
	}
	return nil
}
