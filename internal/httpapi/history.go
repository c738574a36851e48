package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ent0n29/mindstream/internal/memory"
)

const maxHistoryPageSize = 200

func (s *Server) requireHistory(w http.ResponseWriter) bool {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "long-term memory not configured")
		return false
	}
	return true
}

func (s *Server) handleHistoryPage(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		respondError(w, http.StatusBadRequest, "invalid_page", "page must be a positive integer")
		return
	}
	pageSize, ok := s.pageSize(w, r)
	if !ok {
		return
	}

	its, total, err := s.history.GetRecentInteractions(r.Context(), page, pageSize)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"page":         page,
		"page_size":    pageSize,
		"total":        total,
		"interactions": its,
		"messages":     memory.FormatForDisplay(its, memory.DefaultDisplayAuthors, nil),
	})
}

func (s *Server) handleHistoryFeed(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	pageSize, ok := s.pageSize(w, r)
	if !ok {
		return
	}
	page, err := s.history.RecentPage(r.Context(), r.URL.Query().Get("cursor"), pageSize)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidCursor) {
			respondError(w, http.StatusBadRequest, "invalid_cursor", err.Error())
			return
		}
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondError(w, http.StatusBadRequest, "missing_query", "query parameter q is required")
		return
	}
	n, err := queryInt(r, "n", s.cfg.MemorySearchResults)
	if err != nil || n < 0 || n > maxHistoryPageSize {
		respondError(w, http.StatusBadRequest, "invalid_n", "n must be between 0 and 200")
		return
	}
	matches, err := s.history.SearchSimilar(r.Context(), q, n)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"matches": matches,
	})
}

type pruneRequest struct {
	Days *int `json:"days"`
}

func (s *Server) handleHistoryPrune(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	var req pruneRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.Days == nil || *req.Days < 0 {
		respondError(w, http.StatusBadRequest, "invalid_days", "days must be a non-negative integer")
		return
	}
	n, err := s.history.ClearOlderThan(r.Context(), *req.Days)
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": n, "days": *req.Days})
}

func (s *Server) handleHistoryClear(w http.ResponseWriter, r *http.Request) {
	if !s.requireHistory(w) {
		return
	}
	n, err := s.history.ClearAll(r.Context())
	if err != nil {
		respondMemoryError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (s *Server) pageSize(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := queryInt(r, "page_size", s.history.DefaultPageSize())
	if err != nil || n < 1 || n > maxHistoryPageSize {
		respondError(w, http.StatusBadRequest, "invalid_page_size", "page_size must be between 1 and 200")
		return 0, false
	}
	return n, true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func respondMemoryError(w http.ResponseWriter, err error) {
	var perr *memory.PersistenceError
	if errors.As(err, &perr) {
		respondError(w, http.StatusServiceUnavailable, "memory_unavailable", err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, "memory_error", err.Error())
}
