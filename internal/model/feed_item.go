package model

import (
	"fmt"
	"time"
)

// ContentKind 决定使用哪个导入器以及内容字段的形状
type ContentKind string

const (
	KindArticle  ContentKind = "article"
	KindVideo    ContentKind = "video"
	KindWebsite  ContentKind = "website"
	KindTweet    ContentKind = "tweet"
	KindComic    ContentKind = "comic"
	KindYouTube  ContentKind = "youtube"
	KindInterval ContentKind = "interval"
)

var allContentKinds = []ContentKind{
	KindArticle, KindVideo, KindWebsite, KindTweet, KindComic, KindYouTube, KindInterval,
}

// ParseContentKind 校验内容类型
func ParseContentKind(value string) (ContentKind, error) {
	for _, kind := range allContentKinds {
		if string(kind) == value {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown content kind %q", value)
}

// FeedSourceType 订阅来源类型
type FeedSourceType string

const (
	SourceRSS            FeedSourceType = "rss"
	SourceYouTubeChannel FeedSourceType = "youtube_channel"
	SourceInterval       FeedSourceType = "interval"
	SourceApp            FeedSourceType = "app"
	SourceExtension      FeedSourceType = "extension"
	SourceImport         FeedSourceType = "import"
)

// FeedSource 描述条目的来源,订阅类来源带有订阅ID
type FeedSource struct {
	Type           FeedSourceType `gorm:"size:32;not null" json:"type"`
	SubscriptionID string         `gorm:"size:64;index" json:"subscription_id,omitempty"`
}

// IsSubscription 是否来自订阅
func (s FeedSource) IsSubscription() bool {
	switch s.Type {
	case SourceRSS, SourceYouTubeChannel, SourceInterval:
		return true
	}
	return false
}

type TriageStatus string

const (
	TriageUntriaged TriageStatus = "untriaged"
	TriageSaved     TriageStatus = "saved"
	TriageDone      TriageStatus = "done"
	TriageTrashed   TriageStatus = "trashed"
)

// FeedItem 展示给用户的一条内容
type FeedItem struct {
	ID          string      `gorm:"primaryKey;size:64" json:"id"`
	AccountID   string      `gorm:"size:64;index;not null" json:"account_id"`
	FeedSource  FeedSource  `gorm:"embedded;embeddedPrefix:source_" json:"feed_source"`
	ContentKind ContentKind `gorm:"size:32;not null" json:"content_kind"`

	URL           string               `gorm:"size:2048;index" json:"url,omitempty"`
	Title         string               `gorm:"size:500" json:"title"`
	Description   string               `gorm:"type:text" json:"description,omitempty"`
	Summary       *HierarchicalSummary `gorm:"serializer:json" json:"summary,omitempty"`
	OutgoingLinks []string             `gorm:"serializer:json" json:"outgoing_links,omitempty"`
	ImageURL      string               `gorm:"size:2048" json:"image_url,omitempty"`
	AltText       string               `gorm:"type:text" json:"alt_text,omitempty"`

	ImportState  ImportState     `gorm:"embedded;embeddedPrefix:import_" json:"import_state"`
	TriageStatus TriageStatus    `gorm:"size:32;default:untriaged" json:"triage_status"`
	TagIDs       map[string]bool `gorm:"serializer:json" json:"tag_ids,omitempty"`

	CreatedTime     time.Time `gorm:"not null" json:"created_time"`
	LastUpdatedTime time.Time `gorm:"not null" json:"last_updated_time"`
}

// HasTag 标签是否存在
func (i *FeedItem) HasTag(tagID string) bool {
	return i.TagIDs[tagID]
}

// SetTag 设置标签;false 表示从集合中移除而不是存储 false
func (i *FeedItem) SetTag(tagID string, present bool) {
	if !present {
		delete(i.TagIDs, tagID)
		return
	}
	if i.TagIDs == nil {
		i.TagIDs = make(map[string]bool)
	}
	i.TagIDs[tagID] = true
}

// SummarySection 摘要中的一个小节
type SummarySection struct {
	Heading string   `json:"heading"`
	Points  []string `json:"points"`
}

// HierarchicalSummary 从一句话到分节要点的分层摘要
type HierarchicalSummary struct {
	OneLiner string           `json:"one_liner"`
	Overview string           `json:"overview"`
	Sections []SummarySection `json:"sections"`
}
