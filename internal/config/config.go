package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
	Reasoner ReasonerConfig
	AI       AIConfig
	Session  SessionConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig()
	if err != nil {
		return nil, err
	}

	reasoner, err := loadReasonerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	if reasoner.Mode == ReasonerLLM && !ai.Enabled() {
		return nil, fmt.Errorf("REASONER=llm requires ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY) and Model")
	}

	return &Config{
		Server:   server,
		Log:      logCfg,
		Store:    store,
		Reasoner: reasoner,
		AI:       ai,
		Session:  session,
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "3000"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":3000" 或 "127.0.0.1:3000"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志配置。
type LogConfig struct {
	Level       string
	Development bool
}

func loadLogConfig() (LogConfig, error) {
	dev, err := parseBoolEnv("LOG_DEVELOPMENT", false)
	if err != nil {
		return LogConfig{}, err
	}
	return LogConfig{
		Level:       getEnvOrDefault("LOG_LEVEL", "info"),
		Development: dev,
	}, nil
}

// StoreBackend selects where sessions live.
type StoreBackend string

const (
	StoreMemory StoreBackend = "memory"
	StoreMongo  StoreBackend = "mongo"
)

// StoreConfig 描述会话存储配置。
type StoreConfig struct {
	Backend    StoreBackend
	MongoURI   string
	Database   string
	Collection string
	Timeout    time.Duration
}

func loadStoreConfig() (StoreConfig, error) {
	backend := StoreBackend(strings.ToLower(getEnvOrDefault("STORE_BACKEND", string(StoreMemory))))
	switch backend {
	case StoreMemory, StoreMongo:
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_BACKEND value: %q", backend)
	}

	timeout, err := parseDurationEnv("MONGO_TIMEOUT", 5*time.Second)
	if err != nil {
		return StoreConfig{}, err
	}

	cfg := StoreConfig{
		Backend:    backend,
		MongoURI:   strings.TrimSpace(os.Getenv("MONGO_URI")),
		Database:   getEnvOrDefault("MONGO_DATABASE", "timemachine"),
		Collection: getEnvOrDefault("MONGO_COLLECTION", "scenarios"),
		Timeout:    timeout,
	}
	if backend == StoreMongo && cfg.MongoURI == "" {
		return StoreConfig{}, fmt.Errorf("STORE_BACKEND=mongo requires MONGO_URI")
	}
	return cfg, nil
}

// ReasonerMode selects the reasoning engine implementation.
type ReasonerMode string

const (
	ReasonerHTTP      ReasonerMode = "http"
	ReasonerLLM       ReasonerMode = "llm"
	ReasonerHeuristic ReasonerMode = "heuristic"
)

// ReasonerConfig 描述推理引擎配置。
type ReasonerConfig struct {
	Mode      ReasonerMode
	EngineURL string
	Timeout   time.Duration
}

func loadReasonerConfig() (ReasonerConfig, error) {
	mode := ReasonerMode(strings.ToLower(getEnvOrDefault("REASONER", string(ReasonerHTTP))))
	switch mode {
	case ReasonerHTTP, ReasonerLLM, ReasonerHeuristic:
	default:
		return ReasonerConfig{}, fmt.Errorf("invalid REASONER value: %q", mode)
	}

	timeout, err := parseDurationEnv("AI_ENGINE_TIMEOUT", 60*time.Second)
	if err != nil {
		return ReasonerConfig{}, err
	}

	engineURL := getEnvOrDefault("AI_ENGINE_URL", "http://localhost:8000")
	if mode == ReasonerHTTP {
		parsed, err := url.Parse(engineURL)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return ReasonerConfig{}, fmt.Errorf("invalid AI_ENGINE_URL value: %q", engineURL)
		}
	}

	return ReasonerConfig{
		Mode:      mode,
		EngineURL: engineURL,
		Timeout:   timeout,
	}, nil
}

// SessionConfig 描述会话控制器策略。
type SessionConfig struct {
	RollbackFailedTurns bool
}

func loadSessionConfig() (SessionConfig, error) {
	rollback, err := parseBoolEnv("SESSION_ROLLBACK_FAILED_TURNS", false)
	if err != nil {
		return SessionConfig{}, err
	}
	return SessionConfig{RollbackFailedTurns: rollback}, nil
}

// AIConfig 描述大模型相关配置。
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

// parseDurationEnv 接受 "30s" 形式，也接受纯数字秒数。
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
		}
		return time.Duration(secs) * time.Second, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
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
