package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/zhouzirui/chatdesk/backend/internal/model/backend"
	speechModel "github.com/zhouzirui/chatdesk/backend/internal/model/speech"
)

// 内置后端标识
const (
	BackendOpenAI = "openai"
	BackendArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Trace      TraceConfig
	Completion CompletionConfig
	Speech     SpeechConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finalize(&cfg)
}

// LoadEnvironment 从给定的键值对加载配置，不读取进程环境。
func LoadEnvironment(environ map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finalize(&cfg)
}

func finalize(cfg *Config) (*Config, error) {
	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Speech.normalize(cfg.Completion.OpenAI); err != nil {
		return nil, err
	}

	cfg.Completion.DefaultBackend = strings.TrimSpace(cfg.Completion.DefaultBackend)
	if cfg.Completion.DefaultBackend == "" {
		cfg.Completion.DefaultBackend = BackendOpenAI
	}
	return cfg, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	Addr string
}

// resolveAddr 解析服务器监听地址。
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// LogConfig 描述日志轮转配置，File 为空时只输出到标准输出。
type LogConfig struct {
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" envDefault:"28"`
}

// TraceConfig 描述链路追踪输出，File 为空时不导出。
type TraceConfig struct {
	File        string `env:"TRACE_FILE"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"chatdesk"`
}

// CompletionConfig 描述对话补全后端配置。
type CompletionConfig struct {
	DefaultBackend string        `env:"CHAT_BACKEND" envDefault:"openai"`
	SystemPrompt   string        `env:"CHAT_SYSTEM_PROMPT" envDefault:"You're a helpful AI assistant."`
	HTTPTimeout    time.Duration `env:"CHAT_HTTP_TIMEOUT" envDefault:"60s"`
	ProfilesFile   string        `env:"BACKENDS_FILE"`

	OpenAI OpenAIConfig
	Ark    ArkConfig
}

// OpenAIConfig 描述 OpenAI 兼容接口。
type OpenAIConfig struct {
	APIKey  string `env:"OPENAI_API_KEY"`
	BaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model   string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
}

// ArkConfig 描述火山方舟大模型配置。
type ArkConfig struct {
	APIKey    string `env:"ARK_API_KEY"`
	AccessKey string `env:"ARK_ACCESS_KEY"`
	SecretKey string `env:"ARK_SECRET_KEY"`
	Model     string `env:"ARK_MODEL"`
	BaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// BackendProfiles 返回内置后端以及 BACKENDS_FILE 中声明的额外后端。
func (c CompletionConfig) BackendProfiles() ([]backend.Profile, error) {
	profiles := []backend.Profile{
		{
			ID:           BackendOpenAI,
			Name:         "OpenAI",
			Kind:         backend.KindRawHTTP,
			Model:        c.OpenAI.Model,
			BaseURL:      c.OpenAI.BaseURL,
			Description:  "OpenAI chat completions over raw HTTP",
			SystemPrompt: c.SystemPrompt,
			APIKey:       strings.TrimSpace(c.OpenAI.APIKey),
		},
		{
			ID:           BackendArk,
			Name:         "Ark",
			Kind:         backend.KindSDKChat,
			Model:        c.Ark.Model,
			BaseURL:      c.Ark.BaseURL,
			Region:       c.Ark.Region,
			Description:  "Volcengine Ark chat model via eino",
			SystemPrompt: c.SystemPrompt,
			APIKey:       strings.TrimSpace(c.Ark.APIKey),
			AccessKey:    strings.TrimSpace(c.Ark.AccessKey),
			SecretKey:    strings.TrimSpace(c.Ark.SecretKey),
		},
	}

	if c.ProfilesFile == "" {
		return profiles, nil
	}

	extra, err := backend.LoadProfiles(c.ProfilesFile)
	if err != nil {
		return nil, err
	}
	for _, p := range extra {
		if p.SystemPrompt == "" {
			p.SystemPrompt = c.SystemPrompt
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// SpeechConfig 描述语音识别服务相关配置
type SpeechConfig struct {
	Provider       string `env:"SPEECH_PROVIDER" envDefault:"volcengine"`
	AppID          string `env:"SPEECH_APP_ID"`
	AccessToken    string `env:"SPEECH_ACCESS_TOKEN"`
	APIKey         string `env:"SPEECH_API_KEY"`
	ConcurrentMode bool   `env:"SPEECH_CONCURRENT_MODE" envDefault:"false"`
	Endpoint       string `env:"SPEECH_ENDPOINT"`
	BaseURL        string `env:"SPEECH_BASE_URL"`
	Model          string `env:"SPEECH_MODEL" envDefault:"whisper-1"`
	Language       string `env:"SPEECH_LANGUAGE" envDefault:"en-US"`
	Timeout        int    `env:"SPEECH_TIMEOUT" envDefault:"30"`

	Enabled bool
}

func (c *SpeechConfig) normalize(openai OpenAIConfig) error {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.AppID = strings.TrimSpace(c.AppID)
	c.AccessToken = strings.TrimSpace(c.AccessToken)
	c.APIKey = strings.TrimSpace(c.APIKey)

	switch speechModel.Provider(c.Provider) {
	case speechModel.ProviderVolcengine:
		if c.AccessToken == "" {
			c.AccessToken = c.APIKey
		}
		c.Enabled = c.AppID != "" && c.AccessToken != ""
	case speechModel.ProviderHTTP:
		// 没有专门的语音凭证时复用 OpenAI 配置
		if c.APIKey == "" {
			c.APIKey = strings.TrimSpace(openai.APIKey)
		}
		if c.BaseURL == "" {
			c.BaseURL = openai.BaseURL
		}
		c.Enabled = c.APIKey != ""
	default:
		return fmt.Errorf("invalid SPEECH_PROVIDER value: %q", c.Provider)
	}

	if c.Timeout < 0 {
		c.Timeout = 0
	}
	return nil
}

// ServiceConfig 转换为语音服务使用的配置结构。
func (c SpeechConfig) ServiceConfig() *speechModel.SpeechConfig {
	return &speechModel.SpeechConfig{
		Provider:       speechModel.Provider(c.Provider),
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		APIKey:         c.APIKey,
		ConcurrentMode: c.ConcurrentMode,
		Endpoint:       c.Endpoint,
		BaseURL:        c.BaseURL,
		Model:          c.Model,
		Language:       c.Language,
		Timeout:        c.Timeout,
	}
}
