package httpapi

import (
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
	"github.com/go-chi/chi/v5"
)

type resolvePlanRequest struct {
	Tool string `json:"tool"`
}

// handleResolvePlan serves POST /audit/install-plan: resolve a plan for
// {tool} against the current SystemProfile. The resolved
// plan is kept in the in-memory plan store so a dropped stream can be
// recovered via GET /audit/install-plan/{plan_id}.
func (s *Server) handleResolvePlan(w http.ResponseWriter, r *http.Request) {
	var req resolvePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Tool == "" {
		writeError(w, opserr.NewValidationError("tool", "tool is required", nil))
		return
	}

	profile := s.Profiler.Current(r.Context())
	plan, err := s.Resolver.Resolve(r.Context(), req.Tool, profile)
	if err != nil {
		writeError(w, err)
		return
	}

	s.plans.put(plan)
	writeJSON(w, http.StatusOK, plan)
}

// handleGetPlan serves GET /audit/install-plan/{plan_id}: the
// supplemented plan-lookup endpoint.
func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "plan_id")
	plan, ok := s.plans.get(planID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "plan not found: " + planID})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
