package inference

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewAdapterAutoFallsBackToMockWhenNothingConfigured(t *testing.T) {
	a, err := NewAdapter(Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if got := Name(a); got != "mock" {
		t.Fatalf("Name() = %q, want mock", got)
	}

	resp, err := a.StreamResponse(context.Background(), MessageRequest{InputText: "hello"}, nil)
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if !strings.Contains(resp.Text, "I heard you: hello") {
		t.Fatalf("unexpected response text: %q", resp.Text)
	}
}

func TestNewAdapterAutoChainsConfiguredBackends(t *testing.T) {
	a, err := NewAdapter(Config{
		Mode:         "auto",
		HTTPURL:      "http://example.test/complete",
		OpenAIAPIKey: "sk-test",
		OllamaModel:  "qwen3:14b",
	})
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	if got := Name(a); got != "http+openai+ollama" {
		t.Fatalf("Name() = %q, want http+openai+ollama", got)
	}
}

func TestNewAdapterRejectsUnknownMode(t *testing.T) {
	if _, err := NewAdapter(Config{Mode: "telepathy"}); err == nil {
		t.Fatalf("NewAdapter() expected error for unknown mode")
	}
	if _, err := NewAdapter(Config{Mode: "http"}); err == nil {
		t.Fatalf("NewAdapter() expected error for http mode without url")
	}
	if _, err := NewAdapter(Config{Mode: "openai"}); err == nil {
		t.Fatalf("NewAdapter() expected error for openai mode without key")
	}
}

func TestMockAdapterStreamsReasoningInChunks(t *testing.T) {
	var deltas []string
	resp, err := NewMockAdapter().StreamResponse(context.Background(), MessageRequest{InputText: "hi"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if len(deltas) < 2 {
		t.Fatalf("deltas = %d, want several chunks", len(deltas))
	}
	if strings.Join(deltas, "") != resp.Text {
		t.Fatalf("joined deltas = %q, want %q", strings.Join(deltas, ""), resp.Text)
	}
	if !strings.HasPrefix(resp.Text, "<think>") {
		t.Fatalf("resp.Text = %q, want a reasoning block first", resp.Text)
	}
}

func TestFallbackAdapterUsesFallback(t *testing.T) {
	a := NewFallbackAdapter(errAdapter{}, okAdapter{text: "fallback"})
	resp, err := a.StreamResponse(context.Background(), MessageRequest{InputText: "x"}, nil)
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if resp.Text != "fallback" {
		t.Fatalf("resp.Text = %q, want fallback", resp.Text)
	}
}

func TestFallbackAdapterSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := &countingAdapter{text: "fallback"}
	a := NewFallbackAdapter(cancelAdapter{}, fb)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.StreamResponse(ctx, MessageRequest{InputText: "x"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.calls)
	}
}

func TestFallbackAdapterSkipsFallbackAfterPartialOutput(t *testing.T) {
	fb := &countingAdapter{text: "fallback"}
	a := NewFallbackAdapter(partialAdapter{}, fb)
	var got strings.Builder
	_, err := a.StreamResponse(context.Background(), MessageRequest{InputText: "x"}, func(d string) error {
		got.WriteString(d)
		return nil
	})
	if err == nil {
		t.Fatalf("StreamResponse() expected primary error")
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called after partial output, calls = %d", fb.calls)
	}
	if got.String() != "Partial reply" {
		t.Fatalf("forwarded = %q, want %q", got.String(), "Partial reply")
	}
}

func TestFallbackAdapterFirstDeltaTimeout(t *testing.T) {
	fb := &countingAdapter{text: "fallback"}
	a := NewFallbackAdapter(stallAdapter{}, fb)
	a.FirstDeltaTimeout = 20 * time.Millisecond
	resp, err := a.StreamResponse(context.Background(), MessageRequest{InputText: "x"}, nil)
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if resp.Text != "fallback" || fb.calls != 1 {
		t.Fatalf("resp.Text = %q calls = %d, want fallback once", resp.Text, fb.calls)
	}
}

func TestHTTPAdapterStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPAdapter(srv.URL).StreamResponse(context.Background(), MessageRequest{Prompt: "p"}, nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.HTTPStatus() != http.StatusServiceUnavailable {
		t.Fatalf("HTTPStatus() = %d, want 503", se.HTTPStatus())
	}
}

func TestHTTPAdapterStreamsSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"delta\":\"<thi\"}\n\ndata: {\"delta\":\"nk>x</think>ok\"}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	var deltas []string
	resp, err := NewHTTPAdapter(srv.URL).StreamResponse(context.Background(), MessageRequest{Prompt: "p"}, func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamResponse() error = %v", err)
	}
	if resp.Text != "<think>x</think>ok" || len(deltas) != 2 {
		t.Fatalf("resp.Text = %q deltas = %q", resp.Text, deltas)
	}
}

type errAdapter struct{}

func (errAdapter) StreamResponse(context.Context, MessageRequest, DeltaHandler) (MessageResponse, error) {
	return MessageResponse{}, errors.New("boom")
}

type okAdapter struct {
	text string
}

func (a okAdapter) StreamResponse(_ context.Context, _ MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	if onDelta != nil {
		if err := onDelta(a.text); err != nil {
			return MessageResponse{}, err
		}
	}
	return MessageResponse{Text: a.text}, nil
}

type cancelAdapter struct{}

func (cancelAdapter) StreamResponse(context.Context, MessageRequest, DeltaHandler) (MessageResponse, error) {
	return MessageResponse{}, context.Canceled
}

type partialAdapter struct{}

func (partialAdapter) StreamResponse(_ context.Context, _ MessageRequest, onDelta DeltaHandler) (MessageResponse, error) {
	if err := onDelta("Partial reply"); err != nil {
		return MessageResponse{}, err
	}
	return MessageResponse{Text: "Partial reply"}, errors.New("connection reset")
}

type stallAdapter struct{}

func (stallAdapter) StreamResponse(ctx context.Context, _ MessageRequest, _ DeltaHandler) (MessageResponse, error) {
	<-ctx.Done()
	return MessageResponse{}, ctx.Err()
}

type countingAdapter struct {
	text  string
	calls int
}

func (a *countingAdapter) StreamResponse(context.Context, MessageRequest, DeltaHandler) (MessageResponse, error) {
	a.calls++
	return MessageResponse{Text: a.text}, nil
}
