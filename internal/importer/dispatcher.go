package importer

import (
	"context"
	"fmt"
	"log/slog"

	"go-feeds/internal/model"
)

// Dispatcher 按内容类型选择导入器。
// 它不修改 ImportState,状态的写入由持有存储的触发器负责。
type Dispatcher struct {
	website Importer
	youtube Importer
	comic   Importer
	events  EventLogger
	logger  *slog.Logger
}

func NewDispatcher(website, youtube, comic Importer, events EventLogger, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		website: website,
		youtube: youtube,
		comic:   comic,
		events:  events,
		logger:  logger,
	}
}

// Import 执行一次导入,成功后记录 item_imported 事件
func (d *Dispatcher) Import(ctx context.Context, item *model.FeedItem) error {
	if err := d.importerFor(item.ContentKind).Import(ctx, item); err != nil {
		return fmt.Errorf("import feed item %s: %w", item.ID, err)
	}

	ev := &model.ImportEvent{
		Name:        model.EventItemImported,
		FeedItemID:  item.ID,
		AccountID:   item.AccountID,
		ContentKind: item.ContentKind,
	}
	if err := d.events.LogEvent(ctx, ev); err != nil {
		d.logger.Warn("failed to log import event", "item_id", item.ID, "error", err)
	}
	return nil
}

func (d *Dispatcher) importerFor(kind model.ContentKind) Importer {
	switch kind {
	case model.KindArticle, model.KindVideo, model.KindWebsite, model.KindTweet:
		return d.website
	case model.KindYouTube:
		return d.youtube
	case model.KindComic:
		return d.comic
	case model.KindInterval:
		return noopImporter{}
	default:
		panic(fmt.Sprintf("no importer for content kind %q", kind))
	}
}

// 间隔条目只有标题,无需抓取
type noopImporter struct{}

func (noopImporter) Import(context.Context, *model.FeedItem) error { return nil }
