package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/mindstream/internal/inference"
	"github.com/ent0n29/mindstream/internal/persona"
	"github.com/ent0n29/mindstream/internal/reliability"
	"github.com/ent0n29/mindstream/internal/stream"
)

const (
	defaultAttempts   = 3
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// ErrInvalidOutput means the model answer held no usable JSON object.
var ErrInvalidOutput = errors.New("model output is not a JSON object")

// Generator fills a persona template from a chat transcript using a model.
type Generator struct {
	Adapter inference.Adapter
	Logger  *slog.Logger

	// Attempts bounds model calls. Invalid output and transient backend
	// failures are retried with exponential backoff.
	Attempts   int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// Result is a generated profile and what happened while filling it.
type Result struct {
	Profile  *persona.Group
	Applied  []string
	Rejected map[string]error
	Problems []persona.Problem
}

func NewGenerator(adapter inference.Adapter, logger *slog.Logger) *Generator {
	return &Generator{Adapter: adapter, Logger: logger}
}

// Generate asks the model for a value per template field and applies the
// answer to a copy of template. The template itself is left untouched.
func (g *Generator) Generate(ctx context.Context, template *persona.Group, transcript string) (*Result, error) {
	if g == nil || g.Adapter == nil {
		return nil, errors.New("profile generator has no inference adapter")
	}
	if template == nil {
		return nil, errors.New("profile generator needs a template")
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, ErrNoMessages
	}
	logger := g.logger()

	fields := templateFields(template)
	prompt := buildFieldPrompt(fields, transcript)
	logger.Info("generating profile", "fields", len(fields), "prompt_len", len(prompt))

	var values map[string]any
	err := reliability.Retry(ctx, g.attempts(), g.backoff(), g.maxBackoff(), retryable, func(attempt int) error {
		resp, err := g.Adapter.StreamResponse(ctx, inference.MessageRequest{
			TurnID: uuid.NewString(),
			Prompt: prompt,
		}, nil)
		if err != nil {
			logger.Warn("profile model call failed", "attempt", attempt+1, "err", err)
			return err
		}
		values, err = parseValues(resp.Text)
		if err != nil {
			logger.Warn("profile model output rejected", "attempt", attempt+1, "err", err)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate profile: %w", err)
	}

	res := &Result{Profile: template.Clone(), Rejected: map[string]error{}}
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	for _, p := range paths {
		if err := persona.Set(res.Profile, p, normalizeValue(values[p])); err != nil {
			logger.Warn("profile value not applied", "path", p, "err", err)
			res.Rejected[p] = err
			continue
		}
		res.Applied = append(res.Applied, p)
	}

	res.Problems = persona.Validate(res.Profile, template)
	for _, pr := range res.Problems {
		logger.Warn("profile structure problem", "path", pr.Path, "kind", pr.Kind)
	}
	logger.Info("profile generated", "applied", len(res.Applied), "rejected", len(res.Rejected))
	return res, nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrInvalidOutput) || reliability.IsRetryableError(err)
}

type promptField struct {
	path        string
	description string
}

// templateFields lists leaves plus example lists, in document order.
func templateFields(root *persona.Group) []promptField {
	var out []promptField
	_ = persona.Walk(root, func(path string, n persona.Node) error {
		switch v := n.(type) {
		case *persona.Leaf:
			out = append(out, promptField{path: path, description: v.Description})
		case *persona.List:
			out = append(out, promptField{path: path, description: listDescription(v)})
		}
		return nil
	})
	return out
}

func listDescription(l *persona.List) string {
	var keys []string
	for _, item := range l.Items {
		for k := range item {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	var prompts []string
	for _, item := range l.Items {
		if m := strings.TrimSpace(item["user_message"]); m != "" {
			prompts = append(prompts, m)
		}
	}
	desc := "A list of objects with keys " + strings.Join(keys, ", ") + "."
	if len(prompts) > 0 {
		desc += " Answer these user messages the way the person would: " + strings.Join(prompts, " | ")
	}
	return desc
}

func buildFieldPrompt(fields []promptField, transcript string) string {
	var b strings.Builder
	b.WriteString("You are an expert user profile analyst. Here is the chat history:\n")
	b.WriteString(transcript)
	b.WriteString("\n\nAnalyse the chat history and give a value for each of the following fields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s:\n  description: %s\n", f.path, f.description)
	}
	b.WriteString(`
Return the values as a single JSON object keyed by field path:
{
    "field.path": "value",
    ...
}

Requirements:
1. The answer must be valid JSON.
2. Return only the values, never the descriptions.
3. Every value must be grounded in the chat history.
4. Keep the field paths exactly as given.
`)
	return b.String()
}

// parseValues pulls the outermost JSON object out of a model answer after
// dropping reasoning blocks.
func parseValues(text string) (map[string]any, error) {
	text = stream.StripReasoning(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrInvalidOutput
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return values, nil
}

// normalizeValue turns JSON numbers that are whole into ints so they render
// without a fractional part.
func normalizeValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return v
}

func (g *Generator) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Generator) attempts() int {
	if g.Attempts > 0 {
		return g.Attempts
	}
	return defaultAttempts
}

func (g *Generator) backoff() time.Duration {
	if g.Backoff > 0 {
		return g.Backoff
	}
	return defaultBackoff
}

func (g *Generator) maxBackoff() time.Duration {
	if g.MaxBackoff > 0 {
		return g.MaxBackoff
	}
	return defaultMaxBackoff
}
