package api

import (
	"net/http"
	"strconv"
)

// handleListPasses returns stored passes, newest first.
func (s *Server) handleListPasses(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	passes, err := s.history.ListPasses(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing passes failed", "error", err)
		writeInternalError(w, "failed to list passes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"passes": passes, "count": len(passes)})
}

// handleListWrites returns stored register writes, newest first.
func (s *Server) handleListWrites(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "history is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	writes, err := s.history.ListWrites(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing writes failed", "error", err)
		writeInternalError(w, "failed to list writes")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"writes": writes, "count": len(writes)})
}

// parseLimit reads the optional limit query parameter. Zero means the
// repository default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeBadRequest(w, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
