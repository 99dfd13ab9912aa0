package httpapi

import (
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
)

type remediateRequest struct {
	ToolID     string `json:"tool_id"`
	FailureID  string `json:"failure_id"`
	OptionID   string `json:"option_id"`
	ChainID    string `json:"chain_id,omitempty"`
	SudoSecret string `json:"sudo_secret,omitempty"`
}

// handleRemediate serves POST /audit/remediate: execute a chosen
// remediation option. An option naming a lock_prerequisite
// resolves and executes that prerequisite tool's own plan; an option
// with none re-resolves and re-executes the original tool's plan (the
// "retry" strategies all have a command already captured by the
// original recipe, so there is nothing else to run). Either way the
// result streams through the same event shape as plan execution, and
// the caller is expected to re-resolve the original tool afterward if
// a prerequisite install just succeeded.
func (s *Server) handleRemediate(w http.ResponseWriter, r *http.Request) {
	var req remediateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ToolID == "" || req.FailureID == "" || req.OptionID == "" {
		writeError(w, opserr.NewValidationError("", "tool_id, failure_id, and option_id are required", nil))
		return
	}

	recipe, err := s.Registry.Lookup(req.ToolID)
	if err != nil {
		writeError(w, err)
		return
	}

	handler, ok := recipe.HandlerByID(req.FailureID)
	if !ok {
		handler, ok = lookupInfraHandler(req.FailureID)
	}
	if !ok {
		writeError(w, opserr.NewValidationError("failure_id", "no such failure handler for this tool", nil))
		return
	}

	option, ok := findOption(handler, req.OptionID)
	if !ok {
		writeError(w, opserr.NewValidationError("option_id", "no such option for this failure", nil))
		return
	}

	targetTool := req.ToolID
	if option.LockPrerequisite != "" {
		targetTool = option.LockPrerequisite
	}

	profile := s.Profiler.Current(r.Context())
	plan, err := s.Resolver.Resolve(r.Context(), targetTool, profile)
	if err != nil {
		writeError(w, err)
		return
	}
	s.plans.put(plan)

	events, err := s.Engine.Execute(r.Context(), plan, req.SudoSecret)
	if err != nil {
		writeError(w, err)
		return
	}

	s.streamEvents(w, r, plan, req.ChainID, "remediate:"+option.ID, events)
}

func lookupInfraHandler(failureID string) (catalog.FailureHandler, bool) {
	for _, h := range catalog.InfraHandlers {
		if h.FailureID == failureID {
			return h, true
		}
	}
	return catalog.FailureHandler{}, false
}

func findOption(handler catalog.FailureHandler, optionID string) (catalog.RemediationOption, bool) {
	for _, opt := range handler.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return catalog.RemediationOption{}, false
}
