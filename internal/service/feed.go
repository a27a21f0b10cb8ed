package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"go-feeds/internal/model"
)

// ItemWriter 写入新条目所需的存储能力
type ItemWriter interface {
	Create(ctx context.Context, item *model.FeedItem) error
	ExistsForSubscription(ctx context.Context, subscriptionID, url string) (bool, error)
}

type FeedService struct {
	items  ItemWriter
	parser *gofeed.Parser
	logger *slog.Logger
	now    func() time.Time
}

func NewFeedService(items ItemWriter, logger *slog.Logger) *FeedService {
	return &FeedService{
		items:  items,
		parser: gofeed.NewParser(),
		logger: logger,
		now:    time.Now,
	}
}

// YouTubeFeedURL 频道的 Atom 地址
func YouTubeFeedURL(channelID string) string {
	return "https://www.youtube.com/feeds/videos.xml?channel_id=" + channelID
}

// FeedURL 订阅对应的 feed 地址
func FeedURL(sub *model.UserFeedSubscription) (string, error) {
	switch sub.FeedSourceType {
	case model.SourceRSS:
		return sub.URL, nil
	case model.SourceYouTubeChannel:
		return YouTubeFeedURL(sub.ChannelID), nil
	default:
		return "", fmt.Errorf("subscription %s of type %s has no feed url", sub.ID, sub.FeedSourceType)
	}
}

// IngestDocument 解析推送过来的 feed 文档,为未见过的条目创建新 FeedItem
func (s *FeedService) IngestDocument(ctx context.Context, sub *model.UserFeedSubscription, body io.Reader) (int, error) {
	parsed, err := s.parser.Parse(body)
	if err != nil {
		return 0, fmt.Errorf("parse feed document for subscription %s: %w", sub.ID, err)
	}
	return s.ingest(ctx, sub, parsed)
}

// FetchSubscription 主动拉取订阅的 feed
func (s *FeedService) FetchSubscription(ctx context.Context, sub *model.UserFeedSubscription) (int, error) {
	feedURL, err := FeedURL(sub)
	if err != nil {
		return 0, err
	}
	parsed, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	return s.ingest(ctx, sub, parsed)
}

func (s *FeedService) ingest(ctx context.Context, sub *model.UserFeedSubscription, feed *gofeed.Feed) (int, error) {
	if !sub.IsActive {
		return 0, fmt.Errorf("subscription %s is not active", sub.ID)
	}
	kind, err := contentKindFor(sub.FeedSourceType)
	if err != nil {
		return 0, err
	}

	var count int
	for _, entry := range feed.Items {
		link := strings.TrimSpace(entry.Link)
		if link == "" {
			continue
		}
		exists, err := s.items.ExistsForSubscription(ctx, sub.ID, link)
		if err != nil {
			return count, err
		}
		if exists {
			continue
		}

		now := s.now()
		item := &model.FeedItem{
			ID:        uuid.NewString(),
			AccountID: sub.AccountID,
			FeedSource: model.FeedSource{
				Type:           sub.FeedSourceType,
				SubscriptionID: sub.ID,
			},
			ContentKind:     kind,
			URL:             link,
			Title:           entry.Title,
			Description:     entry.Description,
			ImportState:     model.NewImportState(now),
			TriageStatus:    model.TriageUntriaged,
			TagIDs:          map[string]bool{"unread": true},
			CreatedTime:     now,
			LastUpdatedTime: now,
		}
		if err := s.items.Create(ctx, item); err != nil {
			return count, err
		}
		count++
	}

	s.logger.Info("feed ingested", "subscription_id", sub.ID, "entries", len(feed.Items), "new_items", count)
	return count, nil
}

func contentKindFor(t model.FeedSourceType) (model.ContentKind, error) {
	switch t {
	case model.SourceRSS:
		return model.KindArticle, nil
	case model.SourceYouTubeChannel:
		return model.KindYouTube, nil
	default:
		return "", fmt.Errorf("subscription type %s does not carry feed entries", t)
	}
}
