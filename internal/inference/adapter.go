package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// MessageRequest is the normalized request sent to a model backend.
type MessageRequest struct {
	SessionID string `json:"session_id,omitempty"`
	TurnID    string `json:"turn_id,omitempty"`
	// Prompt is the fully assembled prompt.
	Prompt string `json:"prompt"`
	// InputText is the raw user message the prompt was built around.
	InputText string `json:"input_text,omitempty"`
}

// MessageResponse is the final response after streaming deltas.
type MessageResponse struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments in order. Returning an error
// aborts the stream.
type DeltaHandler func(delta string) error

// Adapter streams a model completion for one prompt. Reasoning is delivered
// in-band between <think> and </think> markers.
type Adapter interface {
	StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error)
}

// Config controls adapter construction.
type Config struct {
	Mode string

	OllamaBaseURL string
	OllamaModel   string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	HTTPURL          string
	HTTPStreamStrict bool

	Timeout time.Duration
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoAdapter(cfg)
	case "ollama":
		return NewOllamaAdapter(cfg.OllamaBaseURL, cfg.OllamaModel)
	case "openai":
		return NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("inference HTTP url is required for http mode")
		}
		return NewHTTPAdapterWithOptions(cfg.HTTPURL, cfg.HTTPStreamStrict, cfg.Timeout), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported inference adapter mode %q", cfg.Mode)
	}
}

// newAutoAdapter chains every configured backend in the order HTTP, OpenAI,
// Ollama. With nothing configured it returns the mock adapter.
func newAutoAdapter(cfg Config) (Adapter, error) {
	var chain []Adapter
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		chain = append(chain, NewHTTPAdapterWithOptions(cfg.HTTPURL, cfg.HTTPStreamStrict, cfg.Timeout))
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
		a, err := NewOpenAIAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
	}
	if strings.TrimSpace(cfg.OllamaModel) != "" {
		a, err := NewOllamaAdapter(cfg.OllamaBaseURL, cfg.OllamaModel)
		if err != nil {
			return nil, err
		}
		chain = append(chain, a)
	}

	if len(chain) == 0 {
		return NewMockAdapter(), nil
	}
	out := chain[len(chain)-1]
	for i := len(chain) - 2; i >= 0; i-- {
		out = NewFallbackAdapter(chain[i], out)
	}
	return out, nil
}

// StatusError is a non-2xx answer from a model backend.
type StatusError struct {
	Backend    string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s status %d", e.Backend, e.StatusCode)
	}
	return fmt.Sprintf("%s status %d: %s", e.Backend, e.StatusCode, e.Message)
}

// HTTPStatus exposes the status code to retry classification.
func (e *StatusError) HTTPStatus() int { return e.StatusCode }

// Name returns a short label for the adapter, used in logs and metrics.
func Name(a Adapter) string {
	switch v := a.(type) {
	case *OllamaAdapter:
		return "ollama"
	case *OpenAIAdapter:
		return "openai"
	case *HTTPAdapter:
		return "http"
	case *MockAdapter:
		return "mock"
	case *FallbackAdapter:
		return Name(v.Primary()) + "+" + Name(v.Secondary())
	case nil:
		return "none"
	default:
		return fmt.Sprintf("%T", a)
	}
}
