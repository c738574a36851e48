// Package chat runs conversation turns: prompt assembly from both memory
// tiers, streaming inference split into reasoning and reply, and persistence
// of completed exchanges.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ent0n29/mindstream/internal/inference"
	"github.com/ent0n29/mindstream/internal/memory"
	"github.com/ent0n29/mindstream/internal/observability"
	"github.com/ent0n29/mindstream/internal/policy"
	"github.com/ent0n29/mindstream/internal/prompt"
	"github.com/ent0n29/mindstream/internal/stream"
)

var tracer = otel.Tracer("mindstream/chat")

const (
	defaultRelatedResults = 3
	defaultMinReplyChars  = 2
)

// Sinks receive a turn's output as it streams. Reasoning gets full-replace
// updates, Reply gets append-only fragments. Nil sinks discard.
type Sinks struct {
	Reasoning stream.Sink
	Reply     stream.Sink
}

// Options tune a Conversation. Zero values pick defaults.
type Options struct {
	SessionID   string
	Personality string
	Assembler   *prompt.Assembler
	// RelatedResults is how many long-term matches go into each prompt.
	RelatedResults int
	// MinReplyChars is the shortest trimmed reply, in characters, that is
	// remembered.
	MinReplyChars int
	// RedactPII masks contact data before an exchange reaches long-term
	// memory.
	RedactPII bool
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// Result describes one completed turn.
type Result struct {
	TurnID           string `json:"turn_id"`
	Reply            string `json:"reply"`
	Reasoning        string `json:"reasoning,omitempty"`
	ReasoningPartial bool   `json:"reasoning_partial,omitempty"`
	Related          int    `json:"related"`
	Persisted        bool   `json:"persisted"`
	InteractionID    string `json:"interaction_id,omitempty"`
}

// Conversation is the per-session context for handling user messages. It is
// not safe for concurrent use; a session handles one message at a time.
type Conversation struct {
	adapter  inference.Adapter
	window   *memory.Window
	longTerm *memory.LongTerm

	sessionID      string
	personality    string
	assembler      prompt.Assembler
	relatedResults int
	minReplyChars  int
	redactPII      bool
	logger         *slog.Logger
	metrics        *observability.Metrics

	memoryErrors int
	// beforeStream, when set, learns the turn id before any output is sent.
	beforeStream func(turnID string)
}

// NewConversation binds an adapter and both memory tiers. longTerm may be nil,
// in which case turns only reach the short-term window.
func NewConversation(adapter inference.Adapter, window *memory.Window, longTerm *memory.LongTerm, opts Options) *Conversation {
	c := &Conversation{
		adapter:        adapter,
		window:         window,
		longTerm:       longTerm,
		sessionID:      opts.SessionID,
		personality:    opts.Personality,
		assembler:      prompt.NewAssembler(),
		relatedResults: opts.RelatedResults,
		minReplyChars:  opts.MinReplyChars,
		redactPII:      opts.RedactPII,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
	}
	if opts.Assembler != nil {
		c.assembler = *opts.Assembler
	}
	if c.window == nil {
		c.window = memory.NewWindow(memory.DefaultWindowSize)
	}
	if c.relatedResults <= 0 {
		c.relatedResults = defaultRelatedResults
	}
	if c.minReplyChars <= 0 {
		c.minReplyChars = defaultMinReplyChars
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("session_id", c.sessionID)
	return c
}

// Window exposes the short-term memory of the conversation.
func (c *Conversation) Window() *memory.Window { return c.window }

// SetPersonality replaces the personality text used for later turns.
func (c *Conversation) SetPersonality(text string) { c.personality = text }

// MemoryErrors counts long-term failures swallowed so far.
func (c *Conversation) MemoryErrors() int { return c.memoryErrors }

// HandleMessage runs one turn. On inference failure it returns a *StreamError
// after flushing the segmenter, and nothing is remembered. Long-term memory
// failures are logged and do not fail the turn.
func (c *Conversation) HandleMessage(ctx context.Context, input string, sinks Sinks) (Result, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Result{}, errors.New("empty message")
	}

	res := Result{TurnID: uuid.NewString()}
	logger := c.logger.With("turn_id", res.TurnID)
	backend := inference.Name(c.adapter)

	ctx, span := tracer.Start(ctx, "chat.turn", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", c.sessionID),
		attribute.String("turn.id", res.TurnID),
		attribute.String("inference.backend", backend),
	)

	if c.beforeStream != nil {
		c.beforeStream(res.TurnID)
	}

	started := time.Now()
	related := c.related(ctx, logger, input)
	res.Related = len(related)

	promptText := c.assembler.Assemble(prompt.Input{
		Personality: c.personality,
		History:     c.window.FormattedHistory(),
		Related:     related,
		UserInput:   input,
	})
	c.metrics.ObserveTurnStage(observability.StageContextReady, time.Since(started))
	logger.Debug("prompt assembled", "len", len(promptText), "related", len(related))

	var (
		sinkErr        error
		firstReasoning bool
		firstReply     bool
	)
	demux := stream.NewDemux(
		func(text string) error {
			if !firstReasoning {
				firstReasoning = true
				c.metrics.ObserveTurnStage(observability.StageFirstReasoning, time.Since(started))
			}
			if sinks.Reasoning == nil {
				return nil
			}
			if err := sinks.Reasoning(text); err != nil {
				sinkErr = err
				return err
			}
			return nil
		},
		func(text string) error {
			if !firstReply {
				firstReply = true
				d := time.Since(started)
				c.metrics.ObserveTurnStage(observability.StageFirstReply, d)
				if c.metrics != nil {
					c.metrics.ObserveFirstReplyLatency(d)
				}
			}
			if sinks.Reply == nil {
				return nil
			}
			if err := sinks.Reply(text); err != nil {
				sinkErr = err
				return err
			}
			return nil
		},
	)

	_, streamErr := c.adapter.StreamResponse(ctx, inference.MessageRequest{
		SessionID: c.sessionID,
		TurnID:    res.TurnID,
		Prompt:    promptText,
		InputText: input,
	}, demux.Write)
	closeErr := demux.Close()

	res.Reply = demux.Reply()
	res.Reasoning, res.ReasoningPartial = demux.Reasoning()
	if c.metrics != nil {
		c.metrics.ReasoningUpdates.Observe(float64(demux.ReasoningUpdates()))
	}

	if sinkErr != nil {
		span.SetStatus(codes.Error, "sink failed")
		c.countTurn("sink_error")
		return res, fmt.Errorf("deliver turn output: %w", sinkErr)
	}
	if streamErr != nil {
		serr := newStreamError(backend, streamErr, res.Reply != "")
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, serr.Code())
		if c.metrics != nil {
			c.metrics.ProviderErrors.WithLabelValues(backend, serr.Code()).Inc()
		}
		c.countTurn("stream_error")
		logger.Warn("inference stream failed", "backend", backend, "partial", serr.Partial, "err", streamErr)
		return res, serr
	}
	if closeErr != nil {
		c.countTurn("sink_error")
		return res, fmt.Errorf("deliver turn output: %w", closeErr)
	}

	// The threshold counts trimmed characters; the reply itself is kept verbatim.
	if n := utf8.RuneCountInString(strings.TrimSpace(res.Reply)); n < c.minReplyChars {
		logger.Info("reply too short, not remembered", "chars", n)
		c.metrics.ObserveTurnIndicator(observability.IndicatorReplyNotPersisted)
		c.countTurn("too_short")
		c.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started))
		return res, nil
	}

	c.window.AddUser(input)
	c.window.AddAssistant(res.Reply)
	res.InteractionID, res.Persisted = c.persist(ctx, logger, input, res.Reply, res)

	span.SetAttributes(attribute.Bool("turn.persisted", res.Persisted))
	c.countTurn("ok")
	c.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(started))
	return res, nil
}

func (c *Conversation) related(ctx context.Context, logger *slog.Logger, input string) []memory.Interaction {
	if c.longTerm == nil {
		return nil
	}
	matches, err := c.longTerm.SearchSimilar(ctx, input, c.relatedResults)
	if err != nil {
		c.memoryFailure(logger, "search", err)
		return nil
	}
	out := make([]memory.Interaction, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Interaction)
	}
	return out
}

func (c *Conversation) persist(ctx context.Context, logger *slog.Logger, input, reply string, res Result) (string, bool) {
	if c.longTerm == nil {
		return "", false
	}
	userText, replyText := input, reply
	meta := map[string]any{
		"session_id": c.sessionID,
		"turn_id":    res.TurnID,
	}
	if res.Reasoning != "" {
		meta["reasoning_chars"] = utf8.RuneCountInString(res.Reasoning)
	}
	if c.redactPII {
		var userCats, replyCats []string
		userText, userCats = policy.Redact(userText)
		replyText, replyCats = policy.Redact(replyText)
		if cats := mergeCategories(userCats, replyCats); len(cats) > 0 {
			meta["redacted"] = true
			meta["redacted_categories"] = cats
		}
	}

	started := time.Now()
	id, err := c.longTerm.AddInteraction(ctx, userText, replyText, meta)
	if err != nil {
		c.memoryFailure(logger, "add", err)
		return "", false
	}
	c.metrics.ObserveTurnStage(observability.StageMemoryWrite, time.Since(started))
	trace.SpanFromContext(ctx).AddEvent("memory.write", trace.WithAttributes(attribute.String("interaction.id", id)))
	logger.Debug("interaction remembered", "interaction_id", id)
	return id, true
}

func mergeCategories(a, b []string) []string {
	out := slices.Clone(a)
	for _, c := range b {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func (c *Conversation) memoryFailure(logger *slog.Logger, op string, err error) {
	c.memoryErrors++
	logger.Warn("long-term memory unavailable", "op", op, "err", err)
	c.metrics.ObserveTurnIndicator(observability.IndicatorMemoryError)
	if c.metrics != nil {
		c.metrics.MemoryErrors.WithLabelValues(op).Inc()
	}
}

func (c *Conversation) countTurn(outcome string) {
	if c.metrics != nil {
		c.metrics.Turns.WithLabelValues(outcome).Inc()
	}
}
