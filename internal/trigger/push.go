package trigger

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go-feeds/internal/model"
)

type SubscriptionGetter interface {
	GetByID(ctx context.Context, id string) (*model.UserFeedSubscription, error)
}

type DocumentIngester interface {
	IngestDocument(ctx context.Context, sub *model.UserFeedSubscription, body io.Reader) (int, error)
}

// PushReceiver 处理 feed hub 的推送通知
type PushReceiver struct {
	subs   SubscriptionGetter
	feeds  DocumentIngester
	logger *slog.Logger
}

func NewPushReceiver(subs SubscriptionGetter, feeds DocumentIngester, logger *slog.Logger) *PushReceiver {
	return &PushReceiver{subs: subs, feeds: feeds, logger: logger}
}

// Receive 解析推送文档,为未见过的条目创建 new 状态的 FeedItem。
// 已取消的订阅忽略推送并返回 0。
func (p *PushReceiver) Receive(ctx context.Context, subscriptionID string, body io.Reader) (int, error) {
	sub, err := p.subs.GetByID(ctx, subscriptionID)
	if err != nil {
		return 0, err
	}
	if !sub.IsActive {
		p.logger.Info("push for inactive subscription ignored", "subscription_id", subscriptionID)
		return 0, nil
	}
	created, err := p.feeds.IngestDocument(ctx, sub, body)
	if err != nil {
		return created, fmt.Errorf("handle push for subscription %s: %w", subscriptionID, err)
	}
	return created, nil
}
