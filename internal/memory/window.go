package memory

import "strings"

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is a single message held in short-term memory.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultWindowSize is the number of pairs kept when no size is configured.
const DefaultWindowSize = 10

// Window keeps the last k user/assistant pairs of a session. It is owned by
// one session and is not safe for concurrent use.
type Window struct {
	k     int
	turns []Turn

	// UserLabel and AssistantLabel prefix each line of FormattedHistory.
	UserLabel      string
	AssistantLabel string
}

func NewWindow(k int) *Window {
	if k <= 0 {
		k = 1
	}
	return &Window{
		k:              k,
		turns:          make([]Turn, 0, 2*k),
		UserLabel:      "User",
		AssistantLabel: "AI",
	}
}

// Capacity returns k, the number of pairs kept.
func (w *Window) Capacity() int { return w.k }

// Len returns the number of turns currently held (at most 2k).
func (w *Window) Len() int { return len(w.turns) }

func (w *Window) AddUser(text string) {
	w.add(Turn{Role: RoleUser, Content: text})
}

func (w *Window) AddAssistant(text string) {
	w.add(Turn{Role: RoleAssistant, Content: text})
}

func (w *Window) add(t Turn) {
	w.turns = append(w.turns, t)
	if over := len(w.turns) - 2*w.k; over > 0 {
		// Shift in place so the backing array does not grow with the session.
		n := copy(w.turns, w.turns[over:])
		clear(w.turns[n:])
		w.turns = w.turns[:n]
	}
}

// FormattedHistory renders the window oldest first, one "<role>: <content>"
// line per turn.
func (w *Window) FormattedHistory() string {
	if len(w.turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(w.turns))
	for _, t := range w.turns {
		lines = append(lines, w.label(t.Role)+": "+t.Content)
	}
	return strings.Join(lines, "\n")
}

func (w *Window) label(r Role) string {
	if r == RoleUser {
		return w.UserLabel
	}
	return w.AssistantLabel
}

// Turns returns a copy of the held turns, oldest first.
func (w *Window) Turns() []Turn {
	out := make([]Turn, len(w.turns))
	copy(out, w.turns)
	return out
}

// Load replaces the window contents. Only the newest 2k turns are kept.
func (w *Window) Load(turns []Turn) {
	w.Clear()
	for _, t := range turns {
		w.add(t)
	}
}

func (w *Window) Clear() {
	clear(w.turns)
	w.turns = w.turns[:0]
}
