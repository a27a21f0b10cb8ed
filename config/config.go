package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Cron       CronConfig       `yaml:"cron"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Extractor  ExtractorConfig  `yaml:"extractor"`
	Transcript TranscriptConfig `yaml:"transcript"`
	LLM        LLMConfig        `yaml:"llm"`
	Retry      RetryConfig      `yaml:"retry"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
	// 推送回调校验 hub.verify_token,为空时不校验
	HubVerifyToken string `yaml:"hub_verify_token"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CronConfig struct {
	IntervalSchedule string `yaml:"interval_schedule"` // 间隔订阅的检查周期
}

type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type ExtractorConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

type TranscriptConfig struct {
	URL string `yaml:"url"`
}

type LLMConfig struct {
	APIKey  string        `yaml:"api_key"` // 首次启动时写入 configs 表
	Timeout time.Duration `yaml:"timeout"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`

	// 超过该时长仍处于 processing 的导入视为已丢失,可被回收
	LeaseTimeout time.Duration `yaml:"lease_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default 默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "3000",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Path: "data/feeds.db",
		},
		Cron: CronConfig{
			IntervalSchedule: "*/5 * * * *", // 每5分钟
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			UserAgent: "go-feeds/1.0 (+https://github.com/go-feeds)",
		},
		Extractor: ExtractorConfig{
			URL:     "https://api.firecrawl.dev",
			Timeout: 60 * time.Second,
		},
		LLM: LLMConfig{
			Timeout: 120 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    time.Minute,
			MaxDelay:     30 * time.Minute,
			LeaseTimeout: 15 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// 如果配置文件存在,读取配置
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	} else {
		slog.Info("config file not found, using defaults", "path", configPath)
	}

	// 环境变量覆盖配置
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.Mode = mode
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if key := os.Getenv("EXTRACTOR_API_KEY"); key != "" {
		cfg.Extractor.APIKey = key
	}

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}

	if url := os.Getenv("TRANSCRIPT_URL"); url != "" {
		cfg.Transcript.URL = url
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查 cron 表达式与重试参数
func (c *Config) Validate() error {
	var errs []error
	if _, err := cron.ParseStandard(c.Cron.IntervalSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron.interval_schedule %q: %w", c.Cron.IntervalSchedule, err))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay <= 0 {
		errs = append(errs, fmt.Errorf("retry.base_delay must be positive, got %s", c.Retry.BaseDelay))
	}
	if c.Retry.LeaseTimeout < 0 {
		errs = append(errs, fmt.Errorf("retry.lease_timeout must not be negative, got %s", c.Retry.LeaseTimeout))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, fmt.Errorf("retry.max_delay %s is below base_delay %s", c.Retry.MaxDelay, c.Retry.BaseDelay))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel 解析日志级别
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", c.Log.Level, err)
	}
	return level, nil
}

// GetServerAddress 获取服务器监听地址
func (c *Config) GetServerAddress() string {
	// 如果端口是纯数字,加上冒号前缀
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}
