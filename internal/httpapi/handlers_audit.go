package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
)

// handleAuditActivity serves GET /audit/activity: a paginated, optionally
// filtered read over the append-only audit log.
func (s *Server) handleAuditActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := audit.Query{
		Offset: parseIntDefault(q.Get("offset"), 0),
		Limit:  parseIntDefault(q.Get("limit"), 50),
		Card:   q.Get("card"),
		Text:   q.Get("q"),
	}

	result, err := s.Audit.Query(query)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func parseIntDefault(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
