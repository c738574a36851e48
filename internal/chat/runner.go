package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ent0n29/mindstream/internal/inference"
	"github.com/ent0n29/mindstream/internal/memory"
	"github.com/ent0n29/mindstream/internal/observability"
	"github.com/ent0n29/mindstream/internal/protocol"
	"github.com/ent0n29/mindstream/internal/session"
)

// Runner drives websocket connections for chat sessions. It owns nothing per
// session; each connection builds a Conversation around the session's window.
type Runner struct {
	Adapter  inference.Adapter
	LongTerm *memory.LongTerm
	Sessions *session.Manager
	Metrics  *observability.Metrics
	Logger   *slog.Logger

	// Options is the template for each connection's Conversation.
	Options Options
}

type turnOutcome struct {
	turnID string
	res    Result
	err    error
}

// RunConnection handles inbound protocol messages until inbound is closed or
// ctx is done. A turn runs in the background so a cancel request can reach it,
// but a second user message is refused while a turn is active.
func (r *Runner) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := r.Options
	opts.SessionID = s.ID
	opts.Logger = logger
	opts.Metrics = r.Metrics
	conv := NewConversation(r.Adapter, s.Window(), r.LongTerm, opts)

	send := func(ctx context.Context, msg any) error {
		select {
		case outbound <- msg:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	_ = send(ctx, protocol.SystemEvent{
		Type:      protocol.TypeSystemEvent,
		SessionID: s.ID,
		Code:      "session_ready",
		Detail:    inference.Name(r.Adapter),
	})

	var (
		turnCancel context.CancelFunc
		turnDone   chan turnOutcome
	)
	stopTurn := func() {
		if turnCancel != nil {
			turnCancel()
			<-turnDone
			turnCancel = nil
			turnDone = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTurn()
			return nil
		case out := <-turnDone:
			turnCancel()
			turnCancel = nil
			turnDone = nil
			r.finishTurn(ctx, s.ID, out, send)
		case msg, ok := <-inbound:
			if !ok {
				stopTurn()
				return nil
			}
			_ = r.Sessions.Touch(s.ID)

			switch m := msg.(type) {
			case protocol.UserMessage:
				if turnDone != nil {
					_ = send(ctx, errorEvent(s.ID, "turn_in_progress", "wait for the current reply or cancel it", true))
					continue
				}
				turnCtx, cancel := context.WithCancel(ctx)
				turnCancel = cancel
				turnDone = make(chan turnOutcome, 1)
				go r.runTurn(turnCtx, ctx, conv, s.ID, m.Text, send, turnDone)

			case protocol.ClientControl:
				switch m.Action {
				case protocol.ActionCancel:
					if turnCancel != nil {
						turnCancel()
					}
				case protocol.ActionClearShortTerm:
					if turnDone != nil {
						_ = send(ctx, errorEvent(s.ID, "turn_in_progress", "cannot clear history during a reply", true))
						continue
					}
					conv.Window().Clear()
					_ = send(ctx, protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: s.ID, Code: "short_term_cleared"})
				default:
					_ = send(ctx, errorEvent(s.ID, "unsupported_action", m.Action, false))
				}
			}
		}
	}
}

// runTurn streams one turn. turnCtx bounds the model call; output is delivered
// under connCtx so the flush after a cancel still reaches the client.
func (r *Runner) runTurn(turnCtx, connCtx context.Context, conv *Conversation, sessionID, text string, send func(context.Context, any) error, done chan<- turnOutcome) {
	var turnID string
	sinks := Sinks{
		Reasoning: func(t string) error {
			return send(connCtx, protocol.ReasoningUpdate{Type: protocol.TypeReasoningUpdate, SessionID: sessionID, TurnID: turnID, Text: t})
		},
		Reply: func(t string) error {
			return send(connCtx, protocol.ReplyDelta{Type: protocol.TypeReplyDelta, SessionID: sessionID, TurnID: turnID, TextDelta: t})
		},
	}
	conv.beforeStream = func(id string) {
		turnID = id
		_ = r.Sessions.StartTurn(sessionID, id)
	}
	res, err := conv.HandleMessage(turnCtx, text, sinks)
	conv.beforeStream = nil
	done <- turnOutcome{turnID: res.TurnID, res: res, err: err}
}

func (r *Runner) finishTurn(ctx context.Context, sessionID string, out turnOutcome, send func(context.Context, any) error) {
	_ = r.Sessions.FinishTurn(sessionID, out.turnID)

	end := protocol.TurnEnd{
		Type:             protocol.TypeTurnEnd,
		SessionID:        sessionID,
		TurnID:           out.turnID,
		Reason:           protocol.ReasonCompleted,
		Persisted:        out.res.Persisted,
		InteractionID:    out.res.InteractionID,
		ReasoningPartial: out.res.ReasoningPartial,
	}

	var serr *StreamError
	switch {
	case out.err == nil:
	case errors.Is(out.err, context.Canceled):
		end.Reason = protocol.ReasonCanceled
		_ = r.Sessions.Interrupt(sessionID)
	case errors.As(out.err, &serr):
		end.Reason = protocol.ReasonError
		_ = send(ctx, errorEvent(sessionID, serr.Code(), serr.UserMessage(), serr.Retryable))
	default:
		end.Reason = protocol.ReasonError
		_ = send(ctx, errorEvent(sessionID, "turn_failed", out.err.Error(), false))
	}
	_ = send(ctx, end)
}

func errorEvent(sessionID, code, detail string, retryable bool) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "chat",
		Retryable: retryable,
		Detail:    detail,
	}
}
