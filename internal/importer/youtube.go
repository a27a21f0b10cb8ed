package importer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go-feeds/internal/model"
	"go-feeds/internal/service"
	"go-feeds/internal/store"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// YouTubeImporter 抓取视频字幕
type YouTubeImporter struct {
	transcripts TranscriptFetcher
	blobs       BlobWriter
	items       ItemUpdater
	logger      *slog.Logger
}

func NewYouTubeImporter(transcripts TranscriptFetcher, blobs BlobWriter, items ItemUpdater, logger *slog.Logger) *YouTubeImporter {
	return &YouTubeImporter{transcripts: transcripts, blobs: blobs, items: items, logger: logger}
}

func (y *YouTubeImporter) Import(ctx context.Context, item *model.FeedItem) error {
	videoID, err := VideoID(item.URL)
	if err != nil {
		return err
	}

	transcript, err := y.transcripts.Fetch(ctx, videoID)
	if service.IsHTTPStatus(err, http.StatusNotFound) {
		return fmt.Errorf("fetch YouTube transcript: no transcript available for %s: %w", videoID, err)
	}
	if err != nil {
		return fmt.Errorf("fetch YouTube transcript: %w", err)
	}

	p := store.BlobPath(item.AccountID, item.ID, store.FileTranscript)
	if err := y.blobs.WriteFile(ctx, p, []byte(transcript.Markdown()), "text/markdown"); err != nil {
		return fmt.Errorf("save %s: %w", store.FileTranscript, err)
	}

	patch := &model.FeedItem{
		Title:       firstNonEmpty(transcript.Title, item.Title),
		Description: firstNonEmpty(transcript.Description, item.Description),
	}
	if err := y.items.Update(ctx, item.ID, patch, "title", "description"); err != nil {
		return fmt.Errorf("save metadata: %w", err)
	}

	y.logger.Info("youtube video imported", "item_id", item.ID, "video_id", videoID, "segments", len(transcript.Segments))
	return nil
}

// VideoID 从 watch、youtu.be、shorts、embed 链接中解析视频ID
func VideoID(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")

	var id string
	switch host {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		case strings.HasPrefix(u.Path, "/live/"):
			id = strings.TrimPrefix(u.Path, "/live/")
		}
	default:
		return "", fmt.Errorf("%w: %q is not a YouTube url", ErrInvalidURL, raw)
	}

	id = strings.Trim(id, "/")
	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("%w: no video id in %q", ErrInvalidURL, raw)
	}
	return id, nil
}
