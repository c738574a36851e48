package memory

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Reserved metadata keys written next to the caller's metadata.
const (
	MetaTimestamp         = "timestamp"
	MetaType              = "type"
	MetaUserInput         = "user_input"
	MetaAssistantResponse = "assistant_response"

	interactionType = "chat_interaction"
)

var (
	ErrMalformedRecord = errors.New("malformed interaction record")
	ErrInvalidCursor   = errors.New("invalid history cursor")
	ErrDuplicateID     = errors.New("duplicate record id")
)

// Interaction is one persisted user/assistant exchange.
type Interaction struct {
	ID                string         `json:"id"`
	UserInput         string         `json:"user_input"`
	AssistantResponse string         `json:"assistant_response"`
	Timestamp         int64          `json:"timestamp"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Time returns the interaction timestamp as a time.Time.
func (i Interaction) Time() time.Time {
	return time.UnixMilli(i.Timestamp)
}

// Match is one similarity search hit. Lower distance means more similar.
type Match struct {
	Interaction Interaction `json:"interaction"`
	Distance    float64     `json:"distance"`
}

// Record is the document shape held by a Store.
type Record struct {
	ID        string
	Document  string
	Embedding []float32
	Timestamp int64
	Metadata  map[string]any
}

// ScoredRecord is a Store query hit.
type ScoredRecord struct {
	Record   Record
	Distance float64
}

// Cursor is a keyset position in (timestamp DESC, id DESC) order.
type Cursor struct {
	Timestamp int64
	ID        string
}

// Precedes reports whether a record with the given timestamp and id comes
// strictly after the cursor when walking from newest to oldest.
func (c Cursor) Precedes(ts int64, id string) bool {
	return ts < c.Timestamp || (ts == c.Timestamp && id < c.ID)
}

// Token encodes the cursor for API clients.
func (c Cursor) Token() string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(c.Timestamp, 10) + ":" + c.ID))
}

// ParseCursor decodes a Token. An empty token yields a nil cursor.
func ParseCursor(token string) (*Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	tsPart, id, ok := strings.Cut(string(raw), ":")
	if !ok {
		return nil, ErrInvalidCursor
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return &Cursor{Timestamp: ts, ID: id}, nil
}

// Filter narrows Store.Get. Zero values mean unbounded.
type Filter struct {
	// Before keeps records strictly older than the cursor.
	Before *Cursor
	// AtOrBefore keeps records with Timestamp <= AtOrBefore when positive.
	AtOrBefore int64
}

func (f Filter) Matches(ts int64, id string) bool {
	if f.Before != nil && !f.Before.Precedes(ts, id) {
		return false
	}
	if f.AtOrBefore > 0 && ts > f.AtOrBefore {
		return false
	}
	return true
}

// Store is the persistent, similarity-capable interaction store.
// Implementations must be safe for concurrent use.
type Store interface {
	Add(ctx context.Context, rec Record) error
	// Get returns records matching f, newest first. limit <= 0 means no limit.
	Get(ctx context.Context, f Filter, limit int) ([]Record, error)
	// Query returns up to n records ordered by ascending distance to embedding.
	Query(ctx context.Context, embedding []float32, n int) ([]ScoredRecord, error)
	Delete(ctx context.Context, ids []string) (int, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// PersistenceError reports that the long-term store or the embedder failed.
// Callers in the chat flow log it and carry on.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("long-term memory %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func interactionFromRecord(rec Record) (Interaction, error) {
	userInput, ok := rec.Metadata[MetaUserInput].(string)
	if !ok {
		return Interaction{}, fmt.Errorf("%w: %s missing %s", ErrMalformedRecord, rec.ID, MetaUserInput)
	}
	response, ok := rec.Metadata[MetaAssistantResponse].(string)
	if !ok {
		return Interaction{}, fmt.Errorf("%w: %s missing %s", ErrMalformedRecord, rec.ID, MetaAssistantResponse)
	}

	var extra map[string]any
	for k, v := range rec.Metadata {
		switch k {
		case MetaTimestamp, MetaType, MetaUserInput, MetaAssistantResponse:
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}

	return Interaction{
		ID:                rec.ID,
		UserInput:         userInput,
		AssistantResponse: response,
		Timestamp:         rec.Timestamp,
		Metadata:          extra,
	}, nil
}

func sortRecordsNewestFirst(recs []Record) {
	slices.SortFunc(recs, func(a, b Record) int {
		switch {
		case a.Timestamp != b.Timestamp:
			if a.Timestamp > b.Timestamp {
				return -1
			}
			return 1
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		default:
			return 0
		}
	})
}
