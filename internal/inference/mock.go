package inference

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const mockChunkBytes = 5

// MockAdapter provides deterministic local replies when no model backend is
// configured. Replies carry a short reasoning block and are streamed in small
// chunks that may split markers and multi-byte characters.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) StreamResponse(
	ctx context.Context,
	req MessageRequest,
	onDelta DeltaHandler,
) (MessageResponse, error) {
	select {
	case <-ctx.Done():
		return MessageResponse{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	var out strings.Builder
	for rest := text; rest != ""; {
		n := min(mockChunkBytes, len(rest))
		chunk := rest[:n]
		rest = rest[n:]
		if err := ctx.Err(); err != nil {
			return MessageResponse{Text: out.String()}, err
		}
		out.WriteString(chunk)
		if onDelta != nil {
			if err := onDelta(chunk); err != nil {
				return MessageResponse{Text: out.String()}, err
			}
		}
	}
	return MessageResponse{Text: out.String()}, nil
}

func buildMockReply(req MessageRequest) string {
	base := strings.TrimSpace(req.InputText)
	if base == "" {
		base = "I am listening."
	}
	return fmt.Sprintf("<think>The user wrote %d characters.</think>I heard you: %s", utf8.RuneCountInString(base), base)
}
