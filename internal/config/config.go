package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the chat service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	LogLevel  string
	LogFormat string

	InferenceMode              string
	InferenceTimeout           time.Duration
	InferenceFirstDeltaTimeout time.Duration
	InferenceHTTPURL           string
	InferenceHTTPStrict        bool

	OllamaBaseURL string
	OllamaModel   string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	MemoryK              int
	HistoryPageSize      int
	MemoryStorePath      string
	DatabaseURL          string
	MemoryEmbedder       string
	MemoryEmbeddingDim   int
	MemoryEmbeddingModel string
	MemorySearchResults  int
	MemoryMinReplyChars  int
	MemoryRedactPII      bool

	PersonaPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                   envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:           envOrDefault("APP_METRICS_NAMESPACE", "mindstream"),
		AllowAnyOrigin:             false,
		LogLevel:                   strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
		LogFormat:                  strings.ToLower(envOrDefault("LOG_FORMAT", "text")),
		InferenceMode:              strings.ToLower(envOrDefault("INFERENCE_MODE", "auto")),
		InferenceHTTPURL:           stringsTrimSpace("INFERENCE_HTTP_URL"),
		OllamaBaseURL:              stringsTrimSpace("OLLAMA_BASE_URL"),
		OllamaModel:                stringsTrimSpace("OLLAMA_MODEL"),
		OpenAIAPIKey:               stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIBaseURL:              stringsTrimSpace("OPENAI_BASE_URL"),
		OpenAIModel:                stringsTrimSpace("OPENAI_MODEL"),
		MemoryStorePath:            envOrDefault("MEMORY_STORE_PATH", "./memory/chat_memory.db"),
		DatabaseURL:                stringsTrimSpace("DATABASE_URL"),
		MemoryEmbedder:             strings.ToLower(envOrDefault("MEMORY_EMBEDDER", "hash")),
		MemoryEmbeddingModel:       stringsTrimSpace("MEMORY_EMBEDDING_MODEL"),
		PersonaPath:                stringsTrimSpace("PERSONA_PATH"),
		MemoryK:                    10,
		HistoryPageSize:            5,
		MemoryEmbeddingDim:         384,
		MemorySearchResults:        3,
		MemoryMinReplyChars:        2,
		ShutdownTimeout:            15 * time.Second,
		SessionInactivityTimeout:   30 * time.Minute,
		InferenceTimeout:           2 * time.Minute,
		InferenceFirstDeltaTimeout: 20 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceTimeout, err = durationFromEnv("INFERENCE_TIMEOUT", cfg.InferenceTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceFirstDeltaTimeout, err = durationFromEnv("INFERENCE_FIRST_DELTA_TIMEOUT", cfg.InferenceFirstDeltaTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.InferenceHTTPStrict, err = boolFromEnv("INFERENCE_HTTP_STRICT", cfg.InferenceHTTPStrict)
	if err != nil {
		return Config{}, err
	}
	cfg.MemoryRedactPII, err = boolFromEnv("MEMORY_REDACT_PII", cfg.MemoryRedactPII)
	if err != nil {
		return Config{}, err
	}

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"MEMORY_K", &cfg.MemoryK},
		{"HISTORY_PAGE_SIZE", &cfg.HistoryPageSize},
		{"MEMORY_EMBEDDING_DIM", &cfg.MemoryEmbeddingDim},
		{"MEMORY_SEARCH_RESULTS", &cfg.MemorySearchResults},
		{"MEMORY_MIN_REPLY_CHARS", &cfg.MemoryMinReplyChars},
	} {
		*v.dst, err = intFromEnv(v.key, *v.dst)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.SessionInactivityTimeout < 5*time.Second {
		return fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.MemoryK <= 0 {
		return fmt.Errorf("MEMORY_K must be positive")
	}
	if c.HistoryPageSize <= 0 {
		return fmt.Errorf("HISTORY_PAGE_SIZE must be positive")
	}
	if c.MemoryEmbeddingDim <= 0 {
		return fmt.Errorf("MEMORY_EMBEDDING_DIM must be positive")
	}
	if c.MemorySearchResults < 0 {
		return fmt.Errorf("MEMORY_SEARCH_RESULTS must be >= 0")
	}
	if c.MemoryMinReplyChars < 0 {
		return fmt.Errorf("MEMORY_MIN_REPLY_CHARS must be >= 0")
	}
	switch c.InferenceMode {
	case "auto", "ollama", "openai", "http", "mock":
	default:
		return fmt.Errorf("INFERENCE_MODE %q is not one of auto, ollama, openai, http, mock", c.InferenceMode)
	}
	if c.InferenceMode == "http" && c.InferenceHTTPURL == "" {
		return fmt.Errorf("INFERENCE_HTTP_URL is required when INFERENCE_MODE=http")
	}
	if c.InferenceMode == "openai" && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when INFERENCE_MODE=openai")
	}
	switch c.MemoryEmbedder {
	case "hash", "ollama", "openai":
	default:
		return fmt.Errorf("MEMORY_EMBEDDER %q is not one of hash, ollama, openai", c.MemoryEmbedder)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
