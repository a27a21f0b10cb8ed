package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go-feeds/internal/model"
	"gorm.io/gorm"
)

// 摘要输入的最大字符数
const maxSummaryInput = 60000

const defaultSummaryPrompt = `You summarize web articles for a read-it-later app.
Return JSON only, no markdown fences, in this shape:
{"one_liner": "...", "overview": "...", "sections": [{"heading": "...", "points": ["..."]}]}
one_liner: a single sentence. overview: one paragraph of at most 80 words.
sections: follow the structure of the article, 2-6 sections with 1-5 short points each.`

type LLMService struct {
	db     *gorm.DB
	client *http.Client
}

type LLMConfig struct {
	Provider string
	ApiURL   string
	ApiKey   string
	Model    string
}

type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type ModelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

func NewLLMService(db *gorm.DB, client *http.Client) *LLMService {
	if client == nil {
		client = &http.Client{}
	}
	return &LLMService{
		db:     db,
		client: client,
	}
}

// DefaultConfig 首次启动时写入的配置
func DefaultConfig() map[string]string {
	return map[string]string{
		model.ConfigLLMProvider:   "openai",
		model.ConfigLLMApiURL:     "https://api.openai.com/v1",
		model.ConfigLLMModel:      "gpt-4o-mini",
		model.ConfigPromptSummary: defaultSummaryPrompt,
	}
}

// SeedDefaults 写入缺失的默认配置,apiKey 非空时覆盖密钥
func (s *LLMService) SeedDefaults(apiKey string) error {
	for key, value := range DefaultConfig() {
		if err := s.db.Where("key = ?", key).FirstOrCreate(&model.Config{Key: key, Value: value}).Error; err != nil {
			return fmt.Errorf("seed config %s: %w", key, err)
		}
	}
	if apiKey != "" {
		err := s.db.Where("key = ?", model.ConfigLLMApiKey).
			Assign(model.Config{Value: apiKey}).
			FirstOrCreate(&model.Config{Key: model.ConfigLLMApiKey}).Error
		if err != nil {
			return fmt.Errorf("seed llm api key: %w", err)
		}
	}
	return nil
}

// GetConfig 获取LLM配置
func (s *LLMService) GetConfig() (*LLMConfig, error) {
	configs := make(map[string]string)
	var items []model.Config
	if err := s.db.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}

	for _, item := range items {
		configs[item.Key] = item.Value
	}

	return &LLMConfig{
		Provider: configs[model.ConfigLLMProvider],
		ApiURL:   strings.TrimRight(configs[model.ConfigLLMApiURL], "/"),
		ApiKey:   configs[model.ConfigLLMApiKey],
		Model:    configs[model.ConfigLLMModel],
	}, nil
}

// Chat 调用LLM
func (s *LLMService) Chat(ctx context.Context, prompt, content string) (string, error) {
	cfg, err := s.GetConfig()
	if err != nil {
		return "", err
	}

	messages := make([]Message, 0, 2)
	if prompt != "" {
		messages = append(messages, Message{Role: "system", Content: prompt})
	}
	messages = append(messages, Message{Role: "user", Content: content})

	jsonBody, err := json.Marshal(ChatRequest{Model: cfg.Model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		cfg.ApiURL+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.ApiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call llm: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("parse llm response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// GetPrompt 获取提示词
func (s *LLMService) GetPrompt(key string) string {
	var config model.Config
	if err := s.db.Where("key = ?", key).First(&config).Error; err != nil {
		return DefaultConfig()[key]
	}
	return config.Value
}

// Summarize 由 Markdown 生成分层摘要
func (s *LLMService) Summarize(ctx context.Context, markdown string) (*model.HierarchicalSummary, error) {
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("nothing to summarize")
	}
	markdown = truncate(markdown, maxSummaryInput)

	text, err := s.Chat(ctx, s.GetPrompt(model.ConfigPromptSummary), markdown)
	if err != nil {
		return nil, fmt.Errorf("generate summary: %w", err)
	}

	var summary model.HierarchicalSummary
	if err := json.Unmarshal([]byte(stripMarkdownCodeBlock(text)), &summary); err != nil {
		return nil, fmt.Errorf("parse summary JSON: %w", err)
	}
	if summary.OneLiner == "" && summary.Overview == "" {
		return nil, fmt.Errorf("summary is empty")
	}
	return &summary, nil
}

// stripMarkdownCodeBlock 去掉模型有时会包裹的 ```json 代码块
func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx != -1 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// GetModels 获取可用模型列表
func (s *LLMService) GetModels(ctx context.Context) ([]string, error) {
	cfg, err := s.GetConfig()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.ApiURL+"/models", nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+cfg.ApiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read models response: %w", err)
	}

	var modelsResp ModelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		return nil, fmt.Errorf("parse models response: %w", err)
	}

	models := make([]string, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, m.ID)
	}

	return models, nil
}

// TestConnection 测试LLM连接
func (s *LLMService) TestConnection(ctx context.Context) (string, error) {
	cfg, err := s.GetConfig()
	if err != nil {
		return "", err
	}

	// 验证配置
	if cfg.ApiURL == "" {
		return "", fmt.Errorf("llm api url is not configured")
	}
	if cfg.ApiKey == "" {
		return "", fmt.Errorf("llm api key is not configured")
	}
	if cfg.Model == "" {
		return "", fmt.Errorf("llm model is not configured")
	}

	return s.Chat(ctx, "", "Hi")
}
