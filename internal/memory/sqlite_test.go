package memory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)

	rec := Record{
		ID:        "r1",
		Document:  "q\na",
		Embedding: []float32{0.5, -0.25, 1},
		Timestamp: 42,
		Metadata:  map[string]any{MetaUserInput: "q", MetaAssistantResponse: "a"},
	}
	require.NoError(t, s.Add(ctx, rec))
	assert.ErrorIs(t, s.Add(ctx, rec), ErrDuplicateID)

	got, err := s.Get(ctx, Filter{}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.Embedding, got[0].Embedding)
	assert.Equal(t, "q", got[0].Metadata[MetaUserInput])
	assert.Equal(t, int64(42), got[0].Timestamp)
}

func TestSQLiteStoreKeysetOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLiteStore(t)
	for _, r := range []Record{
		{ID: "a", Timestamp: 10},
		{ID: "b", Timestamp: 10},
		{ID: "c", Timestamp: 20},
		{ID: "d", Timestamp: 5},
	} {
		require.NoError(t, s.Add(ctx, r))
	}

	ids := func(recs []Record) []string {
		out := make([]string, len(recs))
		for i, r := range recs {
			out[i] = r.ID
		}
		return out
	}

	all, err := s.Get(ctx, Filter{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b", "a", "d"}, ids(all))

	after, err := s.Get(ctx, Filter{Before: &Cursor{Timestamp: 10, ID: "b"}}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "d"}, ids(after))

	upTo, err := s.Get(ctx, Filter{AtOrBefore: 10}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "d"}, ids(upTo))

	n, err := s.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLiteStoreQueryMatchesInMemory(t *testing.T) {
	ctx := context.Background()
	emb := NewHashEmbedder(32)
	sq := newTestSQLiteStore(t)
	mem := NewInMemoryStore()

	for i, doc := range []string{"red apple pie", "green apple", "blue sky", "apple"} {
		vec, err := emb.Embed(ctx, doc)
		require.NoError(t, err)
		rec := Record{ID: string(rune('a' + i)), Document: doc, Embedding: vec, Timestamp: int64(i + 1)}
		require.NoError(t, sq.Add(ctx, rec))
		require.NoError(t, mem.Add(ctx, rec))
	}

	q, err := emb.Embed(ctx, "apple")
	require.NoError(t, err)
	fromSQLite, err := sq.Query(ctx, q, 3)
	require.NoError(t, err)
	fromMemory, err := mem.Query(ctx, q, 3)
	require.NoError(t, err)
	require.Len(t, fromSQLite, 3)
	for i := range fromSQLite {
		assert.Equal(t, fromMemory[i].Record.ID, fromSQLite[i].Record.ID)
		assert.InDelta(t, fromMemory[i].Distance, fromSQLite[i].Distance, 1e-9)
	}
	assert.Equal(t, "d", fromSQLite[0].Record.ID)
}

func TestSQLiteStoreCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chat_memory.db")
	s, err := NewSQLiteStore(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, path)
}

func TestLongTermOverSQLite(t *testing.T) {
	m := newTestLongTerm(t, newTestSQLiteStore(t))
	addN(t, m, 12)
	got, total, err := m.GetRecentInteractions(context.Background(), 3, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Equal(t, []string{"question 2", "question 1"}, userInputs(got))
}

func TestVectorLiteralRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 3}
	got, err := parseVectorLiteral(vectorLiteral(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestQuerySkipsMismatchedEmbeddings(t *testing.T) {
	stores := map[string]Store{
		"sqlite":   newTestSQLiteStore(t),
		"inmemory": NewInMemoryStore(),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Add(ctx, Record{ID: "short", Document: "a", Embedding: []float32{1, 0}, Timestamp: 1,
				Metadata: map[string]any{MetaUserInput: "a"}}))
			require.NoError(t, s.Add(ctx, Record{ID: "far", Document: "b", Embedding: []float32{0, 0, 1}, Timestamp: 2,
				Metadata: map[string]any{MetaUserInput: "b"}}))

			hits, err := s.Query(ctx, []float32{1, 0, 0}, 5)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "far", hits[0].Record.ID)
			assert.InDelta(t, 1.0, hits[0].Distance, 1e-9)
		})
	}
}
