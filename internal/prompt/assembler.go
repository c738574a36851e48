// Package prompt renders the single prompt string sent to the model for one
// conversation turn.
package prompt

import (
	"strings"

	"github.com/ent0n29/mindstream/internal/memory"
)

// Input is everything one turn's prompt is built from.
type Input struct {
	// Personality is the rendered persona text. It is emitted verbatim.
	Personality string
	// History is the short-term window as returned by Window.FormattedHistory.
	History string
	// Related are long-term matches for the current input, best first.
	Related   []memory.Interaction
	UserInput string
}

// Assembler formats prompts. The zero value is not useful; use NewAssembler.
type Assembler struct {
	UserLabel      string
	AssistantLabel string
	HistoryHeading string
	RelatedHeading string
}

func NewAssembler() Assembler {
	return Assembler{
		UserLabel:      "User",
		AssistantLabel: "AI",
		HistoryHeading: "Conversation history:",
		RelatedHeading: "Related history:",
	}
}

// Assemble lays the prompt out as personality block, history block (short-term
// history, then related long-term matches) and the current input followed by
// the assistant cue. Empty blocks are left out.
func (a Assembler) Assemble(in Input) string {
	blocks := make([]string, 0, 3)

	if p := strings.TrimSpace(in.Personality); p != "" {
		blocks = append(blocks, p)
	}
	if h := a.historyBlock(in); h != "" {
		blocks = append(blocks, h)
	}

	var cur strings.Builder
	cur.WriteString(a.UserLabel)
	cur.WriteString(": ")
	cur.WriteString(strings.TrimSpace(in.UserInput))
	cur.WriteString("\n")
	cur.WriteString(a.AssistantLabel)
	cur.WriteString(": ")
	blocks = append(blocks, cur.String())

	return strings.Join(blocks, "\n\n")
}

func (a Assembler) historyBlock(in Input) string {
	history := strings.TrimSpace(in.History)

	var related strings.Builder
	for _, it := range in.Related {
		user := strings.TrimSpace(it.UserInput)
		reply := strings.TrimSpace(it.AssistantResponse)
		if user == "" && reply == "" {
			continue
		}
		if related.Len() > 0 {
			related.WriteString("\n")
		}
		related.WriteString(a.UserLabel + ": " + user + "\n")
		related.WriteString(a.AssistantLabel + ": " + reply)
	}

	if history == "" && related.Len() == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(a.HistoryHeading)
	if history != "" {
		b.WriteString("\n")
		b.WriteString(history)
	}
	if related.Len() > 0 {
		b.WriteString("\n\n")
		b.WriteString(a.RelatedHeading)
		b.WriteString("\n")
		b.WriteString(related.String())
	}
	return b.String()
}
