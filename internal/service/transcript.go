package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Transcript 视频字幕及元数据
type Transcript struct {
	Title       string
	Description string
	Segments    []TranscriptSegment
}

type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
}

// Markdown 字幕渲染为 Markdown,每段一行并带时间戳
func (t *Transcript) Markdown() string {
	var sb strings.Builder
	if t.Title != "" {
		sb.WriteString("# " + t.Title + "\n\n")
	}
	for _, seg := range t.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		d := time.Duration(seg.Start * float64(time.Second)).Truncate(time.Second)
		fmt.Fprintf(&sb, "[%s] %s\n", formatOffset(d), text)
	}
	return sb.String()
}

func formatOffset(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// TranscriptClient 字幕服务客户端,复用 Fetcher 发起请求
type TranscriptClient struct {
	baseURL string
	fetcher *Fetcher
}

func NewTranscriptClient(baseURL string, fetcher *Fetcher) *TranscriptClient {
	return &TranscriptClient{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher}
}

type transcriptResponse struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Segments    []TranscriptSegment `json:"segments"`
}

// Fetch 获取视频字幕
func (c *TranscriptClient) Fetch(ctx context.Context, videoID string) (*Transcript, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("transcript service not configured")
	}
	endpoint := c.baseURL + "/transcript?videoId=" + url.QueryEscape(videoID)
	body, err := c.fetcher.Get(ctx, endpoint, "application/json")
	if err != nil {
		return nil, fmt.Errorf("fetch transcript for %s: %w", videoID, err)
	}

	var parsed transcriptResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("parse transcript for %s: %w", videoID, err)
	}
	if len(parsed.Segments) == 0 {
		return nil, fmt.Errorf("transcript for %s is empty", videoID)
	}
	return &Transcript{
		Title:       parsed.Title,
		Description: parsed.Description,
		Segments:    parsed.Segments,
	}, nil
}
