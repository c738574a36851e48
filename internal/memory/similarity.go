package memory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
)

// cosineDistance is 1 - cosine similarity. Zero vectors are treated as
// orthogonal; callers filter out mismatched lengths first.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// scoreRecords computes the distance of every record to embedding. Records
// whose embedding is missing or of another dimension are left out with a
// warning; they were written by a different embedder.
func scoreRecords(embedding []float32, recs []Record, logger *slog.Logger) []ScoredRecord {
	hits := make([]ScoredRecord, 0, len(recs))
	for _, r := range recs {
		if len(r.Embedding) != len(embedding) {
			logger.Warn("memory: skipping record with mismatched embedding",
				"id", r.ID, "dim", len(r.Embedding), "want", len(embedding))
			continue
		}
		hits = append(hits, ScoredRecord{Record: r, Distance: cosineDistance(embedding, r.Embedding)})
	}
	return hits
}

// rankByDistance sorts ascending by distance, breaking ties newest first so
// results are deterministic, and truncates to n.
func rankByDistance(hits []ScoredRecord, n int) []ScoredRecord {
	slices.SortStableFunc(hits, func(a, b ScoredRecord) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		case a.Record.Timestamp > b.Record.Timestamp:
			return -1
		case a.Record.Timestamp < b.Record.Timestamp:
			return 1
		default:
			return strings.Compare(a.Record.ID, b.Record.ID)
		}
	})
	if n > 0 && len(hits) > n {
		hits = hits[:n]
	}
	return hits
}

func encodeVector(v []float32) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("decode vector: %d bytes is not a float32 array", len(blob))
	}
	v := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v, nil
}

// vectorLiteral renders a pgvector text literal such as "[0.1,0.2]".
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 8)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
