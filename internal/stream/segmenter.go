// Package stream splits a model token stream into reasoning and reply channels.
//
// Models such as qwen3 interleave a reasoning block, delimited by <think> and
// </think>, with the reply text. Fragments arrive with arbitrary boundaries,
// so a marker may be split over several fragments; the Segmenter holds back
// only the bytes that could still turn into a marker and releases everything
// else as soon as it is known to be reply text.
package stream

import (
	"strings"
	"unicode/utf8"
)

// Kind classifies an emitted segment.
type Kind int

const (
	// KindReply segments are append-only reply fragments.
	KindReply Kind = iota
	// KindReasoning segments carry the full reasoning text of the current
	// block and replace any previously emitted reasoning.
	KindReasoning
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindReasoning:
		return "reasoning"
	default:
		return "unknown"
	}
}

// Segment is one classified unit of output.
type Segment struct {
	Kind Kind
	Text string
	// Partial is set on the reasoning update emitted when the stream ended
	// before the closing marker was seen.
	Partial bool
}

// Markers delimit a reasoning block.
type Markers struct {
	Open  string
	Close string
}

// DefaultMarkers are the qwen3/deepseek style think tags.
var DefaultMarkers = Markers{Open: "<think>", Close: "</think>"}

type state int

const (
	stateReply state = iota
	stateReasoning
)

// Segmenter is the two-state incremental classifier. It is not safe for
// concurrent use; one Segmenter serves one stream.
type Segmenter struct {
	markers   Markers
	state     state
	carry     string
	reasoning strings.Builder
}

// NewSegmenter returns a Segmenter using DefaultMarkers.
func NewSegmenter() *Segmenter {
	return NewSegmenterWithMarkers(DefaultMarkers)
}

// NewSegmenterWithMarkers returns a Segmenter for custom markers. Empty markers
// fall back to the defaults.
func NewSegmenterWithMarkers(m Markers) *Segmenter {
	if m.Open == "" {
		m.Open = DefaultMarkers.Open
	}
	if m.Close == "" {
		m.Close = DefaultMarkers.Close
	}
	return &Segmenter{markers: m}
}

// InReasoning reports whether the segmenter is inside a reasoning block.
func (s *Segmenter) InReasoning() bool {
	return s.state == stateReasoning
}

// Push consumes one fragment and returns the segments that can be resolved.
func (s *Segmenter) Push(fragment string) []Segment {
	if fragment == "" {
		return nil
	}
	s.carry += fragment
	return s.scan(nil)
}

// Finish flushes whatever is held and resets the segmenter for reuse.
func (s *Segmenter) Finish() []Segment {
	var out []Segment
	switch s.state {
	case stateReply:
		out = appendReply(out, s.carry)
	case stateReasoning:
		s.reasoning.WriteString(s.carry)
		out = append(out, Segment{Kind: KindReasoning, Text: s.reasoning.String(), Partial: true})
	}
	s.reset()
	return out
}

func (s *Segmenter) reset() {
	s.state = stateReply
	s.carry = ""
	s.reasoning.Reset()
}

func (s *Segmenter) scan(out []Segment) []Segment {
	for {
		switch s.state {
		case stateReply:
			if i := strings.Index(s.carry, s.markers.Open); i >= 0 {
				out = appendReply(out, s.carry[:i])
				s.carry = s.carry[i+len(s.markers.Open):]
				s.state = stateReasoning
				s.reasoning.Reset()
				continue
			}
			keep := heldTail(s.carry, s.markers.Open)
			out = appendReply(out, s.carry[:len(s.carry)-keep])
			s.carry = s.carry[len(s.carry)-keep:]
			return out

		case stateReasoning:
			if i := strings.Index(s.carry, s.markers.Close); i >= 0 {
				s.reasoning.WriteString(s.carry[:i])
				out = append(out, Segment{Kind: KindReasoning, Text: s.reasoning.String()})
				s.carry = s.carry[i+len(s.markers.Close):]
				s.state = stateReply
				continue
			}
			// Reasoning is only reported per block, but the resolved prefix can
			// move into the accumulator so the carry stays marker-sized.
			keep := partialMarkerLen(s.carry, s.markers.Close)
			s.reasoning.WriteString(s.carry[:len(s.carry)-keep])
			s.carry = s.carry[len(s.carry)-keep:]
			return out
		}
	}
}

func appendReply(out []Segment, text string) []Segment {
	if text == "" {
		return out
	}
	return append(out, Segment{Kind: KindReply, Text: text})
}

// heldTail is the number of trailing bytes that must not be released as reply
// yet: a proper prefix of the opening marker, or an incomplete UTF-8 sequence.
func heldTail(buf, marker string) int {
	keep := partialMarkerLen(buf, marker)
	rest := buf[:len(buf)-keep]
	for i := len(rest) - 1; i >= 0 && i >= len(rest)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(rest[i]) {
			continue
		}
		if !utf8.FullRuneInString(rest[i:]) {
			keep += len(rest) - i
		}
		break
	}
	return keep
}

// partialMarkerLen returns the length of the longest suffix of buf that is a
// proper prefix of marker.
func partialMarkerLen(buf, marker string) int {
	n := len(marker) - 1
	if n > len(buf) {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(buf, marker[:n]) {
			return n
		}
	}
	return 0
}
