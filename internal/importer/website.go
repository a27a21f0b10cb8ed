package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"

	"go-feeds/internal/fanout"
	"go-feeds/internal/model"
	"go-feeds/internal/service"
	"go-feeds/internal/store"
)

// WebsiteImporter 文章、视频页、推文等通用网页的导入
//
// 原始 HTML 抓取失败是致命的;内容提取服务失败只会缺少标题、描述和摘要。
type WebsiteImporter struct {
	fetcher    Fetcher
	extractor  Extractor
	summarizer Summarizer
	blobs      BlobWriter
	items      ItemUpdater
	policy     *bluemonday.Policy
	converter  *md.Converter
	logger     *slog.Logger
}

func NewWebsiteImporter(
	fetcher Fetcher,
	extractor Extractor,
	summarizer Summarizer,
	blobs BlobWriter,
	items ItemUpdater,
	logger *slog.Logger,
) *WebsiteImporter {
	return &WebsiteImporter{
		fetcher:    fetcher,
		extractor:  extractor,
		summarizer: summarizer,
		blobs:      blobs,
		items:      items,
		policy:     sanitizePolicy(),
		converter:  md.NewConverter("", true, nil),
		logger:     logger,
	}
}

func sanitizePolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.AllowElements("article", "main", "section", "header", "footer", "nav", "aside", "figure", "figcaption")
	return p
}

func (w *WebsiteImporter) Import(ctx context.Context, item *model.FeedItem) error {
	pageURL, err := ValidateURL(item.URL)
	if err != nil {
		return err
	}
	logger := w.logger.With("item_id", item.ID, "url", item.URL)

	raw, scraped := fanout.Pair(ctx,
		func(ctx context.Context) (string, error) {
			return w.fetcher.Get(ctx, pageURL.String(), "text/html")
		},
		func(ctx context.Context) (*service.ScrapeResult, error) {
			return w.extractor.Scrape(ctx, pageURL.String())
		},
	)
	if raw.Err != nil {
		return fmt.Errorf("fetch raw feed item HTML: %w", raw.Err)
	}
	if scraped.Err != nil {
		logger.Warn("content extraction failed, continuing without metadata", "error", scraped.Err)
	}

	sanitized := w.policy.Sanitize(raw.Value)
	if err := w.write(ctx, item, store.FileRawHTML, sanitized, "text/html"); err != nil {
		return err
	}

	article, err := readability.FromReader(strings.NewReader(sanitized), pageURL)
	if err != nil {
		return fmt.Errorf("extract main content: %w", err)
	}
	mainMarkdown, err := w.converter.ConvertString(article.Content)
	if err != nil {
		return fmt.Errorf("convert main content to markdown: %w", err)
	}
	err = fanout.All(ctx,
		func(ctx context.Context) error {
			return w.write(ctx, item, store.FileMainContentHTML, article.Content, "text/html")
		},
		func(ctx context.Context) error {
			return w.write(ctx, item, store.FileMainContentMD, mainMarkdown, "text/markdown")
		},
	)
	if err != nil {
		return fmt.Errorf("save main content: %w", err)
	}

	if scraped.Err != nil {
		return nil
	}
	result := scraped.Value
	if len(result.Links) == 0 {
		result.Links = outgoingLinks(sanitized, pageURL)
	}
	err = fanout.All(ctx,
		func(ctx context.Context) error {
			if err := w.write(ctx, item, store.FileLLMContext, result.Markdown, "text/markdown"); err != nil {
				return err
			}
			patch := &model.FeedItem{
				Title:         firstNonEmpty(result.Title, item.Title),
				Description:   firstNonEmpty(result.Description, item.Description),
				OutgoingLinks: result.Links,
			}
			if err := w.items.Update(ctx, item.ID, patch, "title", "description", "outgoing_links"); err != nil {
				return fmt.Errorf("save metadata: %w", err)
			}
			return nil
		},
		func(ctx context.Context) error {
			summary, err := w.summarizer.Summarize(ctx, result.Markdown)
			if err != nil {
				return err
			}
			if err := w.items.Update(ctx, item.ID, &model.FeedItem{Summary: summary}, "summary"); err != nil {
				return fmt.Errorf("save summary: %w", err)
			}
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("enrich feed item: %w", err)
	}

	logger.Info("website imported", "links", len(result.Links))
	return nil
}

func (w *WebsiteImporter) write(ctx context.Context, item *model.FeedItem, filename, content, contentType string) error {
	p := store.BlobPath(item.AccountID, item.ID, filename)
	if err := w.blobs.WriteFile(ctx, p, []byte(content), contentType); err != nil {
		return fmt.Errorf("save %s: %w", filename, err)
	}
	return nil
}

// outgoingLinks 提取服务未返回链接时,从页面中收集去重后的绝对 http(s) 链接
func outgoingLinks(html string, pageURL *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		ref, err := url.Parse(strings.TrimSpace(a.AttrOr("href", "")))
		if err != nil {
			return
		}
		u := pageURL.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		u.Fragment = ""
		if link := u.String(); !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
