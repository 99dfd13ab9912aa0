package httpapi

import (
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
	"github.com/go-chi/chi/v5"
)

type cacheGetResponse struct {
	Value      interface{} `json:"value"`
	CapturedAt string      `json:"captured_at"`
	Generation uint64      `json:"generation"`
	Stale      bool        `json:"stale"`
}

// handleCacheGet serves GET /devops/cache/{card}.
func (s *Server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	card := chi.URLParam(r, "card")
	result, ok := s.Cache.Get(card)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "cache miss: " + card})
		return
	}

	writeJSON(w, http.StatusOK, cacheGetResponse{
		Value:      result.Value,
		CapturedAt: result.CapturedAt.UTC().Format(httpTimeFormat),
		Generation: result.Generation,
		Stale:      result.Stale,
	})
}

type cacheBustRequest struct {
	Card string `json:"card,omitempty"`
}

type cacheBustResponse struct {
	OK         bool   `json:"ok"`
	Generation uint64 `json:"generation"`
}

// handleCacheBust serves POST /devops/cache/bust: invalidate one card,
// or every card when none is named. This is a write
// operation, so it is audited before being acknowledged.
func (s *Server) handleCacheBust(w http.ResponseWriter, r *http.Request) {
	var req cacheBustRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	pattern := req.Card
	if pattern == "" {
		pattern = "all"
	}
	s.Cache.Invalidate(pattern)

	if s.Audit != nil {
		entry := audit.Entry{
			Timestamp:   timeNow(),
			Actor:       "operator",
			Card:        pattern,
			Action:      "cache_bust",
			Target:      pattern,
			OperationID: newOperationID(),
		}
		if err := s.Audit.Record(entry); err != nil && s.Log != nil {
			s.Log.Error(err, "failed to append audit entry")
		}
	}

	writeJSON(w, http.StatusOK, cacheBustResponse{OK: true, Generation: s.Cache.Generation()})
}

const httpTimeFormat = "2006-01-02T15:04:05.000Z"
