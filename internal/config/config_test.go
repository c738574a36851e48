package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InferenceMode != "auto" {
		t.Fatalf("InferenceMode = %q, want %q", cfg.InferenceMode, "auto")
	}
	if cfg.InferenceHTTPURL != "" {
		t.Fatalf("InferenceHTTPURL = %q, want empty default", cfg.InferenceHTTPURL)
	}
	if cfg.MemoryK != 10 || cfg.HistoryPageSize != 5 || cfg.MemorySearchResults != 3 {
		t.Fatalf("memory defaults = k:%d page:%d n:%d, want 10/5/3", cfg.MemoryK, cfg.HistoryPageSize, cfg.MemorySearchResults)
	}
	if cfg.MemoryStorePath != "./memory/chat_memory.db" {
		t.Fatalf("MemoryStorePath = %q, want default path", cfg.MemoryStorePath)
	}
	if cfg.MemoryEmbedder != "hash" || cfg.MemoryEmbeddingDim != 384 {
		t.Fatalf("embedder = %q/%d, want hash/384", cfg.MemoryEmbedder, cfg.MemoryEmbeddingDim)
	}
	if cfg.MemoryMinReplyChars != 2 {
		t.Fatalf("MemoryMinReplyChars = %d, want 2", cfg.MemoryMinReplyChars)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Fatalf("log = %q/%q, want info/text", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadReadsOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("INFERENCE_MODE", "HTTP")
	t.Setenv("INFERENCE_HTTP_URL", "http://localhost:7777/custom")
	t.Setenv("INFERENCE_HTTP_STRICT", "yes")
	t.Setenv("MEMORY_K", "4")
	t.Setenv("MEMORY_REDACT_PII", "true")
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "90s")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9191")
	}
	if cfg.InferenceMode != "http" || cfg.InferenceHTTPURL != "http://localhost:7777/custom" || !cfg.InferenceHTTPStrict {
		t.Fatalf("inference = %q %q strict=%v, want explicit http values", cfg.InferenceMode, cfg.InferenceHTTPURL, cfg.InferenceHTTPStrict)
	}
	if cfg.MemoryK != 4 || !cfg.MemoryRedactPII {
		t.Fatalf("memory = k:%d redact:%v, want 4/true", cfg.MemoryK, cfg.MemoryRedactPII)
	}
	if cfg.SessionInactivityTimeout != 90*time.Second {
		t.Fatalf("SessionInactivityTimeout = %v, want 90s", cfg.SessionInactivityTimeout)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q, want json", cfg.LogFormat)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"MEMORY_K", "0", "MEMORY_K"},
		{"MEMORY_K", "ten", "MEMORY_K parse error"},
		{"HISTORY_PAGE_SIZE", "-1", "HISTORY_PAGE_SIZE"},
		{"INFERENCE_MODE", "telepathy", "INFERENCE_MODE"},
		{"INFERENCE_MODE", "http", "INFERENCE_HTTP_URL"},
		{"INFERENCE_MODE", "openai", "OPENAI_API_KEY"},
		{"MEMORY_EMBEDDER", "word2vec", "MEMORY_EMBEDDER"},
		{"APP_SESSION_INACTIVITY_TIMEOUT", "1s", "at least 5s"},
		{"MEMORY_REDACT_PII", "maybe", "expected bool"},
		{"LOG_LEVEL", "verbose", "LOG_LEVEL"},
	}
	for _, tc := range cases {
		setCoreEnvEmpty(t)
		t.Setenv(tc.key, tc.value)
		_, err := Load()
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("Load() with %s=%q error = %v, want mention of %q", tc.key, tc.value, err, tc.want)
		}
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"INFERENCE_MODE",
		"INFERENCE_TIMEOUT",
		"INFERENCE_FIRST_DELTA_TIMEOUT",
		"INFERENCE_HTTP_URL",
		"INFERENCE_HTTP_STRICT",
		"OLLAMA_BASE_URL",
		"OLLAMA_MODEL",
		"OPENAI_API_KEY",
		"OPENAI_BASE_URL",
		"OPENAI_MODEL",
		"MEMORY_K",
		"HISTORY_PAGE_SIZE",
		"MEMORY_STORE_PATH",
		"DATABASE_URL",
		"MEMORY_EMBEDDER",
		"MEMORY_EMBEDDING_DIM",
		"MEMORY_EMBEDDING_MODEL",
		"MEMORY_SEARCH_RESULTS",
		"MEMORY_MIN_REPLY_CHARS",
		"MEMORY_REDACT_PII",
		"PERSONA_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
