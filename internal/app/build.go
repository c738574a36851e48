package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ent0n29/mindstream/internal/chat"
	"github.com/ent0n29/mindstream/internal/config"
	"github.com/ent0n29/mindstream/internal/httpapi"
	"github.com/ent0n29/mindstream/internal/inference"
	"github.com/ent0n29/mindstream/internal/memory"
	"github.com/ent0n29/mindstream/internal/observability"
	"github.com/ent0n29/mindstream/internal/persona"
	"github.com/ent0n29/mindstream/internal/prompt"
	"github.com/ent0n29/mindstream/internal/session"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Sessions  *session.Manager
	Runner    *chat.Runner
	LongTerm  *memory.LongTerm
	Metrics   *observability.Metrics
	Inference string

	// Cleanup should be called on shutdown to release the memory store.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	longTerm, err := OpenLongTerm(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	adapter, err := NewInferenceAdapter(cfg)
	if err != nil {
		_ = longTerm.Close()
		return nil, err
	}

	personality, err := LoadPersonality(cfg.PersonaPath)
	if err != nil {
		_ = longTerm.Close()
		return nil, err
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, cfg.MemoryK)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	assembler := prompt.NewAssembler()
	runner := &chat.Runner{
		Adapter:  adapter,
		LongTerm: longTerm,
		Sessions: sessions,
		Metrics:  metrics,
		Logger:   logger,
		Options: chat.Options{
			Personality:    personality,
			Assembler:      &assembler,
			RelatedResults: cfg.MemorySearchResults,
			MinReplyChars:  cfg.MemoryMinReplyChars,
			RedactPII:      cfg.MemoryRedactPII,
		},
	}

	api := httpapi.New(cfg, sessions, runner, longTerm, metrics)

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Sessions:  sessions,
		Runner:    runner,
		LongTerm:  longTerm,
		Metrics:   metrics,
		Inference: inference.Name(adapter),
		Cleanup:   longTerm.Close,
	}, nil
}

// OpenLongTerm opens the configured interaction store and embedder.
func OpenLongTerm(ctx context.Context, cfg config.Config, logger *slog.Logger) (*memory.LongTerm, error) {
	embedder, err := memory.NewEmbedder(memory.EmbedderConfig{
		Kind:          cfg.MemoryEmbedder,
		Dimension:     cfg.MemoryEmbeddingDim,
		Model:         cfg.MemoryEmbeddingModel,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		Timeout:       cfg.InferenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("memory embedder init failed: %w", err)
	}

	store, err := memory.NewStore(ctx, memory.StoreConfig{
		DatabaseURL:  cfg.DatabaseURL,
		Path:         cfg.MemoryStorePath,
		EmbeddingDim: cfg.MemoryEmbeddingDim,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("memory store init failed: %w", err)
	}

	return memory.NewLongTerm(store, embedder, memory.LongTermOptions{
		Logger:          logger,
		DefaultPageSize: cfg.HistoryPageSize,
	}), nil
}

// NewInferenceAdapter builds the configured model backend. A first-delta
// timeout puts the mock adapter behind it so a silent backend still answers.
func NewInferenceAdapter(cfg config.Config) (inference.Adapter, error) {
	adapter, err := inference.NewAdapter(inference.Config{
		Mode:             cfg.InferenceMode,
		OllamaBaseURL:    cfg.OllamaBaseURL,
		OllamaModel:      cfg.OllamaModel,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIModel:      cfg.OpenAIModel,
		HTTPURL:          cfg.InferenceHTTPURL,
		HTTPStreamStrict: cfg.InferenceHTTPStrict,
		Timeout:          cfg.InferenceTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("inference adapter init failed: %w", err)
	}
	if cfg.InferenceFirstDeltaTimeout <= 0 || inference.Name(adapter) == "mock" {
		return adapter, nil
	}
	fb := inference.NewFallbackAdapter(adapter, inference.NewMockAdapter())
	fb.FirstDeltaTimeout = cfg.InferenceFirstDeltaTimeout
	return fb, nil
}

// LoadPersonality renders the persona file at path, or the built-in template
// when path is empty.
func LoadPersonality(path string) (string, error) {
	if path == "" {
		return persona.Render(persona.DefaultTemplate()), nil
	}
	root, err := persona.LoadFile(path)
	if err != nil {
		return "", fmt.Errorf("persona load failed: %w", err)
	}
	if problems := persona.Validate(root, persona.DefaultTemplate()); len(problems) > 0 {
		names := make([]string, 0, len(problems))
		for _, p := range problems {
			names = append(names, p.String())
		}
		slog.Warn("persona does not match the template", "path", path, "problems", names)
	}
	return persona.Render(root), nil
}
