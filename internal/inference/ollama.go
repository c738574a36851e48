package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	defaultOllamaBaseURL = "http://localhost:11434"
	defaultOllamaModel   = "qwen3:14b"
)

// OllamaAdapter streams completions from a local Ollama server.
type OllamaAdapter struct {
	client *api.Client
	model  string
}

func NewOllamaAdapter(baseURL, model string) (*OllamaAdapter, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = defaultOllamaModel
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama url: %w", err)
	}
	return &OllamaAdapter{
		client: api.NewClient(uri, http.DefaultClient),
		model:  model,
	}, nil
}

func (a *OllamaAdapter) StreamResponse(ctx context.Context, req MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	stream := true
	var (
		out      strings.Builder
		thinking bool
	)
	emit := func(s string) error {
		if s == "" {
			return nil
		}
		out.WriteString(s)
		if onDelta == nil {
			return nil
		}
		return onDelta(s)
	}

	err := a.client.Generate(ctx, &api.GenerateRequest{
		Model:  a.model,
		Prompt: req.Prompt,
		Stream: &stream,
	}, func(resp api.GenerateResponse) error {
		// Servers that split thinking out of the response get it re-wrapped in
		// markers so downstream segmentation sees one stream.
		if resp.Thinking != "" {
			if !thinking {
				thinking = true
				if err := emit("<think>"); err != nil {
					return err
				}
			}
			if err := emit(resp.Thinking); err != nil {
				return err
			}
		}
		if resp.Response != "" && thinking {
			thinking = false
			if err := emit("</think>"); err != nil {
				return err
			}
		}
		if err := emit(resp.Response); err != nil {
			return err
		}
		if resp.Done && thinking {
			thinking = false
			return emit("</think>")
		}
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return MessageResponse{Text: out.String()}, &StatusError{Backend: "ollama", StatusCode: se.StatusCode, Message: se.ErrorMessage}
		}
		return MessageResponse{Text: out.String()}, fmt.Errorf("ollama generate: %w", err)
	}
	return MessageResponse{Text: out.String()}, nil
}
