package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
	"unicode"
)

// Embedder produces vector embeddings for text. All vectors produced by one
// Embedder have the same dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbedderConfig selects the embedding backend.
type EmbedderConfig struct {
	// Kind is one of hash, ollama, openai.
	Kind      string
	Dimension int
	Model     string

	OllamaBaseURL string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Timeout       time.Duration
}

func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "hash":
		return NewHashEmbedder(cfg.Dimension), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.OllamaBaseURL, cfg.Model)
	case "openai":
		return NewOpenAIEmbedder(OpenAIEmbedderConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimension,
			Timeout:    cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedder %q", cfg.Kind)
	}
}

const defaultHashDimension = 384

// HashEmbedder is a local feature-hashing embedder. Words and CJK characters
// (unigrams and bigrams) are hashed into a fixed number of signed buckets and
// the result is L2-normalised. It needs no model and is deterministic, which
// makes it the default for offline use and tests.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = defaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for _, tok := range hashTokens(text) {
		hasher := fnv.New64a()
		_, _ = hasher.Write([]byte(tok))
		sum := hasher.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum>>63 == 1 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func hashTokens(text string) []string {
	var (
		tokens  []string
		word    strings.Builder
		prevHan rune
	)
	flushWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.Is(unicode.Han, r):
			flushWord()
			tokens = append(tokens, string(r))
			if prevHan != 0 {
				tokens = append(tokens, string([]rune{prevHan, r}))
			}
			prevHan = r
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flushWord()
		}
		prevHan = 0
	}
	flushWord()
	return tokens
}

var _ Embedder = (*HashEmbedder)(nil)
