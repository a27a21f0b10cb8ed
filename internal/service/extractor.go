package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// ScrapeResult 内容提取服务的结果
type ScrapeResult struct {
	Markdown    string
	Links       []string
	Title       string
	Description string
}

// Extractor Firecrawl 风格的内容提取服务客户端
type Extractor struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewExtractor(baseURL, apiKey string, timeout time.Duration) *Extractor {
	return &Extractor{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Markdown string   `json:"markdown"`
		Links    []string `json:"links"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		} `json:"metadata"`
	} `json:"data"`
}

// Scrape 提取页面 Markdown、链接与元数据
func (e *Extractor) Scrape(ctx context.Context, url string) (*ScrapeResult, error) {
	if e.baseURL == "" {
		return nil, fmt.Errorf("content extractor not configured")
	}

	body, err := json.Marshal(scrapeRequest{
		URL:             url,
		Formats:         []string{"markdown", "links"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/scrape", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create scrape request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call content extractor: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("content extractor returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse scrape response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("content extractor failed: %s", parsed.Error)
	}

	return &ScrapeResult{
		Markdown:    parsed.Data.Markdown,
		Links:       parsed.Data.Links,
		Title:       parsed.Data.Metadata.Title,
		Description: parsed.Data.Metadata.Description,
	}, nil
}

// truncate 截断到最多 n 字节,不切开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
