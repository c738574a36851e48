package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
)

// InMemoryStore is a simple in-process interaction store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record

	// Logger receives skipped-record warnings. Nil uses slog.Default().
	Logger *slog.Logger
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

func (s *InMemoryStore) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *InMemoryStore) Add(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("add %s: %w", rec.ID, ErrDuplicateID)
	}
	s.records[rec.ID] = cloneRecord(rec)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, f Filter, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.Matches(r.Timestamp, r.ID) {
			out = append(out, cloneRecord(r))
		}
	}
	sortRecordsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Query(_ context.Context, embedding []float32, n int) ([]ScoredRecord, error) {
	if n <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	recs := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		recs = append(recs, cloneRecord(r))
	}
	s.mu.RUnlock()
	return rankByDistance(scoreRecords(embedding, recs, s.logger()), n), nil
}

func (s *InMemoryStore) Delete(_ context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *InMemoryStore) Close() error { return nil }

func cloneRecord(r Record) Record {
	r.Embedding = slices.Clone(r.Embedding)
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

var _ Store = (*InMemoryStore)(nil)
