package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"go-feeds/internal/model"
)

// SubscriptionRepo 订阅存储
type SubscriptionRepo interface {
	GetByID(ctx context.Context, id string) (*model.UserFeedSubscription, error)
	FindByAccountSource(ctx context.Context, sub *model.UserFeedSubscription) (*model.UserFeedSubscription, error)
	Create(ctx context.Context, sub *model.UserFeedSubscription) error
	Update(ctx context.Context, id string, patch *model.UserFeedSubscription, columns ...string) error
	ListByAccount(ctx context.Context, accountID string) ([]model.UserFeedSubscription, error)
}

type SubscriptionService struct {
	subs   SubscriptionRepo
	logger *slog.Logger
	now    func() time.Time
}

func NewSubscriptionService(subs SubscriptionRepo, logger *slog.Logger) *SubscriptionService {
	return &SubscriptionService{subs: subs, logger: logger, now: time.Now}
}

// Subscribe 创建订阅;同一来源已存在时重新激活并返回已有记录
func (s *SubscriptionService) Subscribe(ctx context.Context, sub *model.UserFeedSubscription) (*model.UserFeedSubscription, error) {
	if sub.AccountID == "" {
		return nil, fmt.Errorf("subscription requires account id")
	}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subscription: %w", err)
	}

	existing, err := s.subs.FindByAccountSource(ctx, sub)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.IsActive {
			return existing, nil
		}
		if err := s.Resubscribe(ctx, existing.ID); err != nil {
			return nil, err
		}
		return s.subs.GetByID(ctx, existing.ID)
	}

	sub.ID = uuid.NewString()
	sub.IsActive = true
	sub.UnsubscribedTime = nil
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info("subscribed", "subscription_id", sub.ID, "account_id", sub.AccountID, "type", sub.FeedSourceType)
	return sub, nil
}

// Unsubscribe 软删除
func (s *SubscriptionService) Unsubscribe(ctx context.Context, id string) error {
	now := s.now()
	patch := &model.UserFeedSubscription{IsActive: false, UnsubscribedTime: &now}
	if err := s.subs.Update(ctx, id, patch, "is_active", "unsubscribed_time"); err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	s.logger.Info("unsubscribed", "subscription_id", id)
	return nil
}

// Resubscribe 重新激活
func (s *SubscriptionService) Resubscribe(ctx context.Context, id string) error {
	patch := &model.UserFeedSubscription{IsActive: true}
	if err := s.subs.Update(ctx, id, patch, "is_active", "unsubscribed_time"); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}
	s.logger.Info("resubscribed", "subscription_id", id)
	return nil
}

// UpdateDeliverySchedule 修改投递排期,nil 表示清除
func (s *SubscriptionService) UpdateDeliverySchedule(ctx context.Context, id string, schedule *model.DeliverySchedule) error {
	if schedule != nil {
		if err := schedule.Validate(); err != nil {
			return fmt.Errorf("invalid delivery schedule: %w", err)
		}
	}
	patch := &model.UserFeedSubscription{DeliverySchedule: schedule}
	if err := s.subs.Update(ctx, id, patch, "delivery_schedule"); err != nil {
		return fmt.Errorf("update delivery schedule: %w", err)
	}
	return nil
}

func (s *SubscriptionService) List(ctx context.Context, accountID string) ([]model.UserFeedSubscription, error) {
	return s.subs.ListByAccount(ctx, accountID)
}

func (s *SubscriptionService) Get(ctx context.Context, id string) (*model.UserFeedSubscription, error) {
	return s.subs.GetByID(ctx, id)
}
