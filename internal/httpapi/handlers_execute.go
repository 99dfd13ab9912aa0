package httpapi

import (
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
)

type executePlanRequest struct {
	PlanID     string `json:"plan_id"`
	SudoSecret string `json:"sudo_secret,omitempty"`
	ChainID    string `json:"chain_id,omitempty"`
}

// handleExecutePlan serves POST /audit/install-plan/execute: run a
// previously-resolved plan, streaming events.
func (s *Server) handleExecutePlan(w http.ResponseWriter, r *http.Request) {
	var req executePlanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	plan, ok := s.plans.get(req.PlanID)
	if !ok {
		writeError(w, opserr.NewPlanResolutionError(req.PlanID, "unknown plan_id", nil))
		return
	}

	events, err := s.Engine.Execute(r.Context(), plan, req.SudoSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	s.streamEvents(w, r, plan, req.ChainID, "install_plan_execute", events)
}
