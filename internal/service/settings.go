package service

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"go-feeds/internal/model"
)

// SettingsService configs 表的读写
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService(db *gorm.DB) *SettingsService {
	return &SettingsService{db: db}
}

// All 返回全部配置,密钥只保留末四位
func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	var configs []model.Config
	if err := s.db.WithContext(ctx).Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	result := make(map[string]string, len(configs))
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
		if cfg.Key == model.ConfigLLMApiKey {
			result[cfg.Key] = maskSecret(cfg.Value)
		}
	}
	return result, nil
}

// Save 写入或覆盖配置。值为掩码形式的密钥会被忽略。
func (s *SettingsService) Save(ctx context.Context, input map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range input {
			if key == model.ConfigLLMApiKey && strings.HasPrefix(value, "****") {
				continue
			}
			err := tx.Where("key = ?", key).
				Assign(model.Config{Value: value}).
				FirstOrCreate(&model.Config{Key: key}).Error
			if err != nil {
				return fmt.Errorf("save setting %s: %w", key, err)
			}
		}
		return nil
	})
}

func maskSecret(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 4 {
		return "****"
	}
	return "****" + v[len(v)-4:]
}
