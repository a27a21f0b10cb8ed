// Package importer 按内容类型抓取并派生条目的完整内容
package importer

import (
	"context"

	"go-feeds/internal/model"
	"go-feeds/internal/service"
)

// Importer 单一内容类型的导入策略
type Importer interface {
	Import(ctx context.Context, item *model.FeedItem) error
}

type Fetcher interface {
	Get(ctx context.Context, url, accept string) (string, error)
}

type Extractor interface {
	Scrape(ctx context.Context, url string) (*service.ScrapeResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, markdown string) (*model.HierarchicalSummary, error)
}

type TranscriptFetcher interface {
	Fetch(ctx context.Context, videoID string) (*service.Transcript, error)
}

type BlobWriter interface {
	WriteFile(ctx context.Context, path string, content []byte, contentType string) error
}

// ItemUpdater 只更新指定列
type ItemUpdater interface {
	Update(ctx context.Context, id string, patch *model.FeedItem, columns ...string) error
}

type EventLogger interface {
	LogEvent(ctx context.Context, ev *model.ImportEvent) error
}
