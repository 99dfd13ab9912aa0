package httpapi

import "net/http"

// handleSystemProfile serves GET /api/system-profile: the current
// SystemProfile, cached by CachedProfiler with a 5s TTL.
func (s *Server) handleSystemProfile(w http.ResponseWriter, r *http.Request) {
	profile := s.Profiler.Current(r.Context())
	writeJSON(w, http.StatusOK, profile)
}
