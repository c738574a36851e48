package stream

import (
	"context"
	"strings"
)

// Sink receives text for one output channel. Reasoning sinks get full-replace
// updates; reply sinks get append-only fragments.
type Sink func(text string) error

// Demux drives a Segmenter and forwards its segments to the two sinks. It also
// keeps the full reply and the latest reasoning so the caller can persist the
// turn once the stream completes.
type Demux struct {
	seg         *Segmenter
	onReasoning Sink
	onReply     Sink

	reply     strings.Builder
	reasoning string
	partial   bool
	updates   int
}

// NewDemux wires a new Segmenter to the sinks. Nil sinks discard output.
func NewDemux(onReasoning, onReply Sink) *Demux {
	return &Demux{
		seg:         NewSegmenter(),
		onReasoning: onReasoning,
		onReply:     onReply,
	}
}

// Write consumes one fragment. It matches the inference delta handler shape so
// a Demux can be handed to an adapter directly.
func (d *Demux) Write(fragment string) error {
	return d.dispatch(d.seg.Push(fragment))
}

// Close flushes the held text. It must be called once, on normal completion
// and on abnormal termination alike.
func (d *Demux) Close() error {
	return d.dispatch(d.seg.Finish())
}

// Reply returns the concatenation of every reply fragment emitted so far.
func (d *Demux) Reply() string { return d.reply.String() }

// Reasoning returns the latest reasoning update and whether it came from an
// unterminated block.
func (d *Demux) Reasoning() (string, bool) { return d.reasoning, d.partial }

// ReasoningUpdates counts the reasoning updates emitted so far.
func (d *Demux) ReasoningUpdates() int { return d.updates }

func (d *Demux) dispatch(segments []Segment) error {
	for _, s := range segments {
		switch s.Kind {
		case KindReply:
			d.reply.WriteString(s.Text)
			if d.onReply != nil {
				if err := d.onReply(s.Text); err != nil {
					return err
				}
			}
		case KindReasoning:
			d.reasoning = s.Text
			d.partial = s.Partial
			d.updates++
			if d.onReasoning != nil {
				if err := d.onReasoning(s.Text); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Run consumes fragments from a channel until it is closed or ctx is done.
// On cancellation the held text is still flushed before ctx.Err is returned.
func Run(ctx context.Context, fragments <-chan string, onReasoning, onReply Sink) (*Demux, error) {
	d := NewDemux(onReasoning, onReply)
	for {
		select {
		case <-ctx.Done():
			if err := d.Close(); err != nil {
				return d, err
			}
			return d, ctx.Err()
		case f, ok := <-fragments:
			if !ok {
				return d, d.Close()
			}
			if err := d.Write(f); err != nil {
				return d, err
			}
		}
	}
}

// StripReasoning drops every reasoning block, including an unterminated one,
// and returns the reply text.
func StripReasoning(text string) string {
	seg := NewSegmenter()
	var b strings.Builder
	for _, s := range append(seg.Push(text), seg.Finish()...) {
		if s.Kind == KindReply {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
