package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 5
	dayMillis       = int64(24 * time.Hour / time.Millisecond)
)

// LongTermOptions tunes a LongTerm. Zero values pick defaults.
type LongTermOptions struct {
	Logger          *slog.Logger
	DefaultPageSize int
	// Now overrides the wall clock in tests.
	Now func() time.Time
	// NewID overrides uuid generation in tests.
	NewID func() string
}

// LongTerm is the persistent, similarity-searchable interaction log shared by
// all sessions. It is safe for concurrent use.
type LongTerm struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
	newID    func() string

	mu   sync.Mutex
	last int64
}

// Page is one cursor-addressed slice of the history, newest first.
type Page struct {
	Interactions []Interaction `json:"interactions"`
	NextCursor   string        `json:"next_cursor,omitempty"`
	Total        int           `json:"total"`
}

func NewLongTerm(store Store, embedder Embedder, opts LongTermOptions) *LongTerm {
	if embedder == nil {
		embedder = NewHashEmbedder(0)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = defaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &LongTerm{
		store:    store,
		embedder: embedder,
		logger:   opts.Logger,
		pageSize: opts.DefaultPageSize,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// DefaultPageSize returns the page size used when callers pass <= 0.
func (m *LongTerm) DefaultPageSize() int { return m.pageSize }

// nextTimestamp issues strictly increasing millisecond timestamps so that
// successive adds from this process never tie.
func (m *LongTerm) nextTimestamp() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().UnixMilli()
	if ts <= m.last {
		ts = m.last + 1
	}
	m.last = ts
	return ts
}

// clockNow is the wall clock, but never earlier than the last issued timestamp.
func (m *LongTerm) clockNow() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(m.now().UnixMilli(), m.last)
}

// AddInteraction stores one exchange and indexes "userInput\nassistantResponse"
// for similarity search. Store and embedder failures come back as
// *PersistenceError.
func (m *LongTerm) AddInteraction(ctx context.Context, userInput, assistantResponse string, metadata map[string]any) (string, error) {
	id := m.newID()
	ts := m.nextTimestamp()
	document := userInput + "\n" + assistantResponse

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = make(map[string]any, 4)
	}
	meta[MetaTimestamp] = ts
	meta[MetaType] = interactionType
	meta[MetaUserInput] = userInput
	meta[MetaAssistantResponse] = assistantResponse

	embedding, err := m.embedder.Embed(ctx, document)
	if err != nil {
		return "", &PersistenceError{Op: "embed", Err: err}
	}

	rec := Record{
		ID:        id,
		Document:  document,
		Embedding: embedding,
		Timestamp: ts,
		Metadata:  meta,
	}
	if err := m.store.Add(ctx, rec); err != nil {
		return "", &PersistenceError{Op: "add", Err: err}
	}

	m.logger.Debug("long-term memory: stored interaction", "interaction_id", id, "timestamp", ts)
	return id, nil
}

// SearchSimilar returns up to n interactions ordered by ascending distance to
// query. An empty result is not an error.
func (m *LongTerm) SearchSimilar(ctx context.Context, query string, n int) ([]Match, error) {
	if n <= 0 {
		return nil, nil
	}
	embedding, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, &PersistenceError{Op: "embed", Err: err}
	}
	hits, err := m.store.Query(ctx, embedding, n)
	if err != nil {
		return nil, &PersistenceError{Op: "query", Err: err}
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		it, ok := m.toInteraction(h.Record)
		if !ok {
			continue
		}
		out = append(out, Match{Interaction: it, Distance: h.Distance})
	}
	return out, nil
}

// GetRecentInteractions returns page (1-based) of the history, newest first,
// plus the total number of stored interactions. Page N is reached by walking
// backwards N-1 times from the newest record, each step anchored on the oldest
// record seen so far. Pages past the end are empty.
func (m *LongTerm) GetRecentInteractions(ctx context.Context, page, pageSize int) ([]Interaction, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = m.pageSize
	}

	total, err := m.store.Count(ctx)
	if err != nil {
		return nil, 0, &PersistenceError{Op: "count", Err: err}
	}

	var filter Filter
	for step := 1; step < page; step++ {
		recs, err := m.store.Get(ctx, filter, pageSize)
		if err != nil {
			return nil, total, &PersistenceError{Op: "get", Err: err}
		}
		if len(recs) < pageSize {
			return []Interaction{}, total, nil
		}
		oldest := recs[len(recs)-1]
		filter.Before = &Cursor{Timestamp: oldest.Timestamp, ID: oldest.ID}
	}

	recs, err := m.store.Get(ctx, filter, pageSize)
	if err != nil {
		return nil, total, &PersistenceError{Op: "get", Err: err}
	}
	return m.toInteractions(recs), total, nil
}

// RecentPage is the cursor-token form of GetRecentInteractions. An empty
// token starts at the newest interaction.
func (m *LongTerm) RecentPage(ctx context.Context, token string, pageSize int) (Page, error) {
	cursor, err := ParseCursor(token)
	if err != nil {
		return Page{}, err
	}
	if pageSize <= 0 {
		pageSize = m.pageSize
	}

	total, err := m.store.Count(ctx)
	if err != nil {
		return Page{}, &PersistenceError{Op: "count", Err: err}
	}

	recs, err := m.store.Get(ctx, Filter{Before: cursor}, pageSize+1)
	if err != nil {
		return Page{}, &PersistenceError{Op: "get", Err: err}
	}

	page := Page{Total: total}
	if len(recs) > pageSize {
		recs = recs[:pageSize]
		last := recs[len(recs)-1]
		page.NextCursor = Cursor{Timestamp: last.Timestamp, ID: last.ID}.Token()
	}
	page.Interactions = m.toInteractions(recs)
	return page, nil
}

// Count returns the number of stored interactions.
func (m *LongTerm) Count(ctx context.Context) (int, error) {
	n, err := m.store.Count(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "count", Err: err}
	}
	return n, nil
}

// ClearOlderThan deletes interactions stamped at or before now minus days
// and returns how many were removed. days == 0 clears everything stored so
// far; a cutoff before the epoch removes nothing.
func (m *LongTerm) ClearOlderThan(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, fmt.Errorf("clear older than %d days: days must not be negative", days)
	}
	now := m.clockNow()
	if int64(days) > now/dayMillis {
		return 0, nil
	}
	cutoff := now - int64(days)*dayMillis
	if cutoff <= 0 {
		return 0, nil
	}
	return m.deleteMatching(ctx, Filter{AtOrBefore: cutoff}, "clear older than")
}

// ClearAll deletes every stored interaction.
func (m *LongTerm) ClearAll(ctx context.Context) (int, error) {
	return m.deleteMatching(ctx, Filter{}, "clear all")
}

func (m *LongTerm) deleteMatching(ctx context.Context, f Filter, op string) (int, error) {
	recs, err := m.store.Get(ctx, f, 0)
	if err != nil {
		return 0, &PersistenceError{Op: op, Err: err}
	}
	if len(recs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	n, err := m.store.Delete(ctx, ids)
	if err != nil {
		return 0, &PersistenceError{Op: op, Err: err}
	}
	m.logger.Info("long-term memory: deleted interactions", "op", op, "count", n)
	return n, nil
}

// Close releases the underlying store.
func (m *LongTerm) Close() error { return m.store.Close() }

func (m *LongTerm) toInteractions(recs []Record) []Interaction {
	out := make([]Interaction, 0, len(recs))
	for _, r := range recs {
		if it, ok := m.toInteraction(r); ok {
			out = append(out, it)
		}
	}
	return out
}

func (m *LongTerm) toInteraction(rec Record) (Interaction, bool) {
	it, err := interactionFromRecord(rec)
	if err != nil {
		if errors.Is(err, ErrMalformedRecord) {
			m.logger.Warn("long-term memory: skipping malformed record", "id", rec.ID, "error", err)
		}
		return Interaction{}, false
	}
	return it, true
}
