package memory

import "time"

const displayTimeLayout = "2006-01-02 15:04:05"

// DisplayMessage is one history bubble for a chat client.
type DisplayMessage struct {
	Author        string `json:"author"`
	Content       string `json:"content"`
	Timestamp     string `json:"timestamp"`
	InteractionID string `json:"interaction_id"`
}

// DisplayAuthors names the two sides in FormatForDisplay output.
type DisplayAuthors struct {
	User      string
	Assistant string
}

var DefaultDisplayAuthors = DisplayAuthors{User: "User", Assistant: "Assistant"}

// FormatForDisplay expands each interaction into a user message followed by
// the assistant reply, both stamped with the interaction time in loc.
func FormatForDisplay(interactions []Interaction, authors DisplayAuthors, loc *time.Location) []DisplayMessage {
	if loc == nil {
		loc = time.Local
	}
	out := make([]DisplayMessage, 0, 2*len(interactions))
	for _, it := range interactions {
		stamp := it.Time().In(loc).Format(displayTimeLayout)
		out = append(out,
			DisplayMessage{Author: authors.User, Content: it.UserInput, Timestamp: stamp, InteractionID: it.ID},
			DisplayMessage{Author: authors.Assistant, Content: it.AssistantResponse, Timestamp: stamp, InteractionID: it.ID},
		)
	}
	return out
}
