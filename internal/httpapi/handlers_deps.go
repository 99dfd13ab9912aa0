package httpapi

import (
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
)

type checkDepsRequest struct {
	Packages []string `json:"packages"`
}

type checkDepsResponse struct {
	Installed []string `json:"installed"`
	Missing   []string `json:"missing"`
}

// handleCheckDeps serves POST /audit/check-deps: probe the host's
// native package manager for presence of the requested packages.
func (s *Server) handleCheckDeps(w http.ResponseWriter, r *http.Request) {
	var req checkDepsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Packages) == 0 {
		writeError(w, opserr.NewValidationError("packages", "packages must be non-empty", nil))
		return
	}

	profile := s.Profiler.Current(r.Context())
	installed, missing := installplan.CheckPackages(r.Context(), s.Runner, profile.PackageManager.Primary, req.Packages)

	writeJSON(w, http.StatusOK, checkDepsResponse{Installed: installed, Missing: missing})
}

type toolStatusEntry struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Available bool   `json:"available"`
}

type toolsStatusResponse struct {
	Tools        []toolStatusEntry `json:"tools"`
	Available    int               `json:"available"`
	MissingCount int               `json:"missing_count"`
}

// handleToolsStatus serves GET /tools/status, backed by the Devops
// Cache under card `tools:status` with a 5s TTL and the recipe catalog
// directory's mtime as its staleness input, so
// repeated dashboard polling does not re-probe every tool's verify
// command on every request.
func (s *Server) handleToolsStatus(w http.ResponseWriter, r *http.Request) {
	const card = "tools:status"

	if cached, ok := s.Cache.Get(card); ok && !cached.Stale {
		writeJSON(w, http.StatusOK, cached.Value)
		return
	}

	ctx := r.Context()
	var entries []toolStatusEntry
	available := 0
	for _, id := range s.Registry.AllIDs() {
		recipe, err := s.Registry.Lookup(id)
		if err != nil {
			continue
		}
		ok := len(recipe.Verify) > 0 && s.Runner.Run(ctx, recipe.Verify[0], recipe.Verify[1:]...)
		if ok {
			available++
		}
		entries = append(entries, toolStatusEntry{ID: id, Label: recipe.Label, Available: ok})
	}

	response := toolsStatusResponse{
		Tools:        entries,
		Available:    available,
		MissingCount: len(entries) - available,
	}

	s.Cache.Put(card, response, []string{s.RecipeDir}, ToolsStatusTTL)
	writeJSON(w, http.StatusOK, response)
}
