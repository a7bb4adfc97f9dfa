package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个客户端的配置项。
type Config struct {
	Server   ServerConfig
	Stub     ServerConfig
	Backend  BackendConfig
	Chat     ChatConfig
	Identity IdentityConfig
	Log      LogConfig
	AI       AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig("PORT", "8080")
	if err != nil {
		return nil, err
	}

	stub, err := loadServerConfig("STUB_PORT", "8081")
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	identity, err := loadIdentityConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Stub:     stub,
		Backend:  backend,
		Chat:     chat,
		Identity: identity,
		Log:      logCfg,
		AI:       ai,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(key, defaultPort string) (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv(key))
	if port == "" {
		port = defaultPort
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid %s value: %q", key, port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// BackendConfig 描述关系型后端的连接配置。
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	timeout, err := parseOptionalIntEnv("BACKEND_TIMEOUT_SECONDS")
	if err != nil {
		return BackendConfig{}, err
	}
	timeoutSeconds := 10
	if timeout != nil && *timeout > 0 {
		timeoutSeconds = *timeout
	}

	return BackendConfig{
		BaseURL: getEnvOrDefault("BACKEND_BASE_URL", "http://localhost:8081"),
		Timeout: time.Duration(timeoutSeconds) * time.Second,
	}, nil
}

// ChatConfig 控制问答轮询与会话目录加载。
type ChatConfig struct {
	PollMaxAttempts      int
	PollInterval         time.Duration
	DirectoryConcurrency int
}

// DefaultChatConfig 返回默认的轮询参数：30 次，每次间隔 1.5 秒。
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		PollMaxAttempts:      30,
		PollInterval:         1500 * time.Millisecond,
		DirectoryConcurrency: 4,
	}
}

func loadChatConfig() (ChatConfig, error) {
	cfg := DefaultChatConfig()

	attempts, err := parseOptionalIntEnv("CHAT_POLL_MAX_ATTEMPTS")
	if err != nil {
		return ChatConfig{}, err
	}
	if attempts != nil {
		if *attempts < 1 {
			return ChatConfig{}, fmt.Errorf("invalid CHAT_POLL_MAX_ATTEMPTS value %d: must be positive", *attempts)
		}
		cfg.PollMaxAttempts = *attempts
	}

	intervalMs, err := parseOptionalIntEnv("CHAT_POLL_INTERVAL_MS")
	if err != nil {
		return ChatConfig{}, err
	}
	if intervalMs != nil {
		if *intervalMs < 0 {
			return ChatConfig{}, fmt.Errorf("invalid CHAT_POLL_INTERVAL_MS value %d: must not be negative", *intervalMs)
		}
		cfg.PollInterval = time.Duration(*intervalMs) * time.Millisecond
	}

	concurrency, err := parseOptionalIntEnv("CHAT_DIRECTORY_CONCURRENCY")
	if err != nil {
		return ChatConfig{}, err
	}
	if concurrency != nil {
		if *concurrency < 1 {
			cfg.DirectoryConcurrency = 1
		} else {
			cfg.DirectoryConcurrency = *concurrency
		}
	}

	return cfg, nil
}

// IdentityConfig 描述本地身份存储位置。
type IdentityConfig struct {
	DBPath string
}

func loadIdentityConfig() (IdentityConfig, error) {
	if path := strings.TrimSpace(os.Getenv("IDENTITY_DB_PATH")); path != "" {
		return IdentityConfig{DBPath: path}, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return IdentityConfig{}, fmt.Errorf("resolve home directory: %w", err)
	}
	return IdentityConfig{DBPath: filepath.Join(home, ".local", "share", "roboadvisor", "client.db")}, nil
}

// LogConfig 描述日志级别。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() (LogConfig, error) {
	development, err := parseBoolEnv("LOG_DEVELOPMENT", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:       strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Development: development,
	}, nil
}

// AIConfig 描述开发用后端桩所使用的大模型配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
	SystemNotes string
	ReplyDelay  time.Duration
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	delayMs, err := parseOptionalIntEnv("STUB_REPLY_DELAY_MS")
	if err != nil {
		return AIConfig{}, err
	}
	replyDelay := 3 * time.Second
	if delayMs != nil && *delayMs >= 0 {
		replyDelay = time.Duration(*delayMs) * time.Millisecond
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   maxTokens,
		SystemNotes: strings.TrimSpace(os.Getenv("AI_SYSTEM_NOTES")),
		ReplyDelay:  replyDelay,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
