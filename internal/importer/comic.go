package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"go-feeds/internal/model"
)

// 按优先级查找漫画图片
var comicImageSelectors = []string{"#comic img", "#cc-comic", ".comic img", "article img"}

// ComicImporter 单格漫画:图片地址加上 title/alt 文本
type ComicImporter struct {
	fetcher Fetcher
	items   ItemUpdater
	logger  *slog.Logger
}

func NewComicImporter(fetcher Fetcher, items ItemUpdater, logger *slog.Logger) *ComicImporter {
	return &ComicImporter{fetcher: fetcher, items: items, logger: logger}
}

func (c *ComicImporter) Import(ctx context.Context, item *model.FeedItem) error {
	pageURL, err := ValidateURL(item.URL)
	if err != nil {
		return err
	}

	html, err := c.fetcher.Get(ctx, pageURL.String(), "text/html")
	if err != nil {
		return fmt.Errorf("fetch comic page: %w", err)
	}

	comic, err := ParseComic(html, pageURL)
	if err != nil {
		return err
	}

	patch := &model.FeedItem{
		Title:    firstNonEmpty(comic.Title, item.Title),
		ImageURL: comic.ImageURL,
		AltText:  comic.AltText,
	}
	if err := c.items.Update(ctx, item.ID, patch, "title", "image_url", "alt_text"); err != nil {
		return fmt.Errorf("save comic metadata: %w", err)
	}

	c.logger.Info("comic imported", "item_id", item.ID, "image_url", comic.ImageURL)
	return nil
}

type Comic struct {
	Title    string
	ImageURL string
	AltText  string
}

// ParseComic 从页面中提取漫画图片及其文字
func ParseComic(html string, pageURL *url.URL) (*Comic, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse comic page: %w", err)
	}

	comic := &Comic{
		Title: firstNonEmpty(
			doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
	}

	for _, selector := range comicImageSelectors {
		img := doc.Find(selector).First()
		src, ok := img.Attr("src")
		if !ok || strings.TrimSpace(src) == "" {
			continue
		}
		comic.ImageURL = resolve(pageURL, src)
		comic.AltText = firstNonEmpty(img.AttrOr("title", ""), img.AttrOr("alt", ""))
		break
	}
	if comic.ImageURL == "" {
		if src := doc.Find(`meta[property="og:image"]`).AttrOr("content", ""); src != "" {
			comic.ImageURL = resolve(pageURL, src)
			comic.AltText = doc.Find(`meta[property="og:image:alt"]`).AttrOr("content", "")
		}
	}
	if comic.ImageURL == "" {
		return nil, fmt.Errorf("no comic image found on %s", pageURL)
	}
	return comic, nil
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
