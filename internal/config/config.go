package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	AI        AIConfig
	Extractor ExtractorConfig
	Storage   StorageConfig
	Context   ContextConfig
	Metrics   MetricsConfig
	Relay     RelayConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	contextCfg, err := loadContextConfig()
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    server,
		AI:        ai,
		Extractor: loadExtractorConfig(),
		Storage:   storage,
		Context:   contextCfg,
		Metrics:   MetricsConfig{Namespace: getEnvOrDefault("METRICS_NAMESPACE", "agropredict")},
		Relay:     relay,
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
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// Completion providers understood by AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderArk    = "ark"
	ProviderOpenAI = "openai"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider string

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Temperature *float64
	TopP        *float64
	MaxTokens   *int

	// ResumeHistory seeds completion sessions with stored turns instead of
	// replaying the human side of the conversation.
	ResumeHistory bool
}

// Enabled 表示所选模型提供方是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	switch c.Provider {
	case ProviderGemini:
		return c.GeminiAPIKey != "" && c.GeminiModel != ""
	case ProviderArk:
		return c.ArkModel != "" && (c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
	case ProviderOpenAI:
		return c.OpenAIAPIKey != "" && c.OpenAIModel != ""
	default:
		return false
	}
}

func loadAIConfig() (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("AI_PROVIDER", ProviderGemini))
	switch provider {
	case ProviderGemini, ProviderArk, ProviderOpenAI:
	default:
		return AIConfig{}, fmt.Errorf("invalid AI_PROVIDER value %q", provider)
	}

	temperature, err := parseOptionalFloatEnv("AI_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("AI_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("AI_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	resume, err := parseBoolEnv("AI_RESUME_HISTORY", false)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:      provider,
		GeminiAPIKey:  strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:   getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash-002"),
		GeminiBaseURL: strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		ArkAPIKey:     strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkAccessKey:  strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		ArkSecretKey:  strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ArkModel:      strings.TrimSpace(os.Getenv("ARK_MODEL")),
		ArkBaseURL:    getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		ArkRegion:     getEnvOrDefault("ARK_REGION", "cn-beijing"),
		OpenAIAPIKey:  strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:   getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Temperature:   temperature,
		TopP:          topP,
		MaxTokens:     maxTokens,
		ResumeHistory: resume,
	}, nil
}

// ExtractorConfig 描述问答抽取模型配置。
type ExtractorConfig struct {
	Token   string
	Model   string
	BaseURL string
}

func loadExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Token:   strings.TrimSpace(os.Getenv("HF_TOKEN")),
		Model:   getEnvOrDefault("QA_MODEL", "deepset/roberta-base-squad2"),
		BaseURL: getEnvOrDefault("QA_BASE_URL", "https://api-inference.huggingface.co/models"),
	}
}

// Storage backends understood by STORAGE_BACKEND.
const (
	StorageMemory   = "memory"
	StorageGCS      = "gcs"
	StoragePostgres = "postgres"
)

// StorageConfig 描述持久化后端配置。
type StorageConfig struct {
	Backend         string
	Bucket          string
	CredentialsFile string
	DatabaseURL     string
}

func loadStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{
		Backend:         strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", StorageMemory)),
		Bucket:          strings.TrimSpace(os.Getenv("BUCKET_NAME")),
		CredentialsFile: strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_FILE")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
	}

	switch cfg.Backend {
	case StorageMemory:
	case StorageGCS:
		if cfg.Bucket == "" {
			return StorageConfig{}, fmt.Errorf("BUCKET_NAME is required when STORAGE_BACKEND=gcs")
		}
	case StoragePostgres:
		if cfg.DatabaseURL == "" {
			return StorageConfig{}, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
		}
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_BACKEND value %q", cfg.Backend)
	}
	return cfg, nil
}

// ContextConfig 描述会话上下文窗口。
type ContextConfig struct {
	MaxTurns int
	Expiry   time.Duration
}

func loadContextConfig() (ContextConfig, error) {
	maxTurns := 10
	if override, err := parseOptionalIntEnv("CONTEXT_MAX_TURNS"); err != nil {
		return ContextConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return ContextConfig{}, fmt.Errorf("invalid CONTEXT_MAX_TURNS value %d: must be positive", *override)
		}
		maxTurns = *override
	}

	expiry, err := parseDurationEnv("CONTEXT_EXPIRY", time.Hour)
	if err != nil {
		return ContextConfig{}, err
	}
	if expiry <= 0 {
		return ContextConfig{}, fmt.Errorf("invalid CONTEXT_EXPIRY value %s: must be positive", expiry)
	}

	return ContextConfig{MaxTurns: maxTurns, Expiry: expiry}, nil
}

// MetricsConfig 描述 Prometheus 指标配置。
type MetricsConfig struct {
	Namespace string
}

// RelayConfig 描述转发层配置。
type RelayConfig struct {
	BackendURL string
	Timeout    time.Duration
}

func loadRelayConfig() (RelayConfig, error) {
	timeout, err := parseDurationEnv("RELAY_TIMEOUT", 30*time.Second)
	if err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		BackendURL: strings.TrimRight(getEnvOrDefault("GEMINI_SERVICE_URL", "http://localhost:8080"), "/"),
		Timeout:    timeout,
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

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
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
