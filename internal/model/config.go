package model

import "time"

// Config 运行时可修改的键值配置
type Config struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"size:100;uniqueIndex;not null"`
	Value     string    `gorm:"type:text"`
	UpdatedAt time.Time
}

// 预定义配置键
const (
	ConfigLLMProvider   = "llm_provider"
	ConfigLLMApiURL     = "llm_api_url"
	ConfigLLMApiKey     = "llm_api_key"
	ConfigLLMModel      = "llm_model"
	ConfigPromptSummary = "prompt_summary"
)

// ImportEvent 导入成功事件
type ImportEvent struct {
	ID          uint        `gorm:"primaryKey"`
	Name        string      `gorm:"size:64;not null"`
	FeedItemID  string      `gorm:"size:64;index;not null"`
	AccountID   string      `gorm:"size:64;index"`
	ContentKind ContentKind `gorm:"size:32"`
	CreatedAt   time.Time
}

const EventItemImported = "item_imported"
