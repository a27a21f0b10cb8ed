package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"go-feeds/internal/model"
	"go-feeds/internal/schedule"
)

type ItemRepo interface {
	GetByID(ctx context.Context, id string) (*model.FeedItem, error)
	Create(ctx context.Context, item *model.FeedItem) error
	QueryByField(ctx context.Context, field string, value any) ([]model.FeedItem, error)
}

type SubscriptionLister interface {
	ListByAccount(ctx context.Context, accountID string) ([]model.UserFeedSubscription, error)
}

// ItemService 手动保存与按投递排期列出条目
type ItemService struct {
	items ItemRepo
	subs  SubscriptionLister
	now   func() time.Time
}

func NewItemService(items ItemRepo, subs SubscriptionLister) *ItemService {
	return &ItemService{items: items, subs: subs, now: time.Now}
}

// SaveRequest 从应用、浏览器扩展或导入保存一个链接
type SaveRequest struct {
	AccountID   string               `json:"account_id" binding:"required"`
	URL         string               `json:"url" binding:"required"`
	ContentKind model.ContentKind    `json:"content_kind"`
	Source      model.FeedSourceType `json:"source"`
	Title       string               `json:"title"`
}

// Save 创建 new 状态的条目,导入由存储触发
func (s *ItemService) Save(ctx context.Context, req SaveRequest) (*model.FeedItem, error) {
	kind := req.ContentKind
	if kind == "" {
		kind = model.KindArticle
	}
	if _, err := model.ParseContentKind(string(kind)); err != nil {
		return nil, err
	}
	if kind == model.KindInterval {
		return nil, fmt.Errorf("interval items cannot be saved manually")
	}

	source := req.Source
	if source == "" {
		source = model.SourceApp
	}
	switch source {
	case model.SourceApp, model.SourceExtension, model.SourceImport:
	default:
		return nil, fmt.Errorf("source %q is not a manual source", source)
	}

	now := s.now()
	item := &model.FeedItem{
		ID:              uuid.NewString(),
		AccountID:       req.AccountID,
		FeedSource:      model.FeedSource{Type: source},
		ContentKind:     kind,
		URL:             req.URL,
		Title:           req.Title,
		ImportState:     model.NewImportState(now),
		TriageStatus:    model.TriageUntriaged,
		TagIDs:          map[string]bool{"unread": true},
		CreatedTime:     now,
		LastUpdatedTime: now,
	}
	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *ItemService) Get(ctx context.Context, id string) (*model.FeedItem, error) {
	return s.items.GetByID(ctx, id)
}

// ListDelivered 账户下当前可见的条目。
// 来自订阅的条目按订阅的投递排期过滤,手动保存的条目总是可见。
func (s *ItemService) ListDelivered(ctx context.Context, accountID string) ([]model.FeedItem, error) {
	items, err := s.items.QueryByField(ctx, "account_id", accountID)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	schedules := make(map[string]*model.DeliverySchedule, len(subs))
	for _, sub := range subs {
		schedules[sub.ID] = sub.DeliverySchedule
	}

	now := s.now()
	delivered := make([]model.FeedItem, 0, len(items))
	for _, item := range items {
		if item.FeedSource.IsSubscription() &&
			!schedule.IsDelivered(now, item.CreatedTime, schedules[item.FeedSource.SubscriptionID]) {
			continue
		}
		delivered = append(delivered, item)
	}
	return delivered, nil
}
