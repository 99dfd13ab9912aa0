package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/audit"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/chain"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
)

// streamEvents drains an Engine event channel onto the HTTP response as
// a line-delimited JSON stream, enriching the terminal
// `done` event with a RemediationResponse and ChainSummary when the
// plan failed. A chain is only started or extended when the matched
// handler sets chain_forward: chainID, when non-empty, names the
// existing escalation chain to extend; otherwise a new chain is started.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, plan installplan.InstallPlan, chainID, action string, events <-chan execengine.ExecutionEvent) {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)

	lastFailedStepIdx := -1
	var lastExitCode int
	var lastStderrTail string

	for event := range events {
		if event.Kind == execengine.EventStepFailed {
			lastFailedStepIdx = event.StepIdx
			lastExitCode = event.ExitCode
			lastStderrTail = event.StderrTail
		}

		if event.Kind == execengine.EventDone && !event.OK && !event.Cancelled && lastFailedStepIdx >= 0 {
			s.attachRemediation(r.Context(), &event, plan, chainID, lastFailedStepIdx, lastExitCode, lastStderrTail)
		}

		if event.Kind == execengine.EventDone {
			s.recordExecutionAudit(plan, action, event)
		}

		_ = enc.Encode(event)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// attachRemediation runs the Handler Matcher + Remediation Planner +
// Chain Tracker against the failed step and fills event.Remediation /
// event.Chain in place.
func (s *Server) attachRemediation(ctx context.Context, event *execengine.ExecutionEvent, plan installplan.InstallPlan, chainID string, stepIdx, exitCode int, stderrTail string) {
	recipe, err := s.Registry.Lookup(plan.ToolID)
	if err != nil {
		return
	}

	methodFamily := ""
	if stepIdx >= 0 && stepIdx < len(plan.Steps) {
		methodFamily = plan.Steps[stepIdx].MethodFamily
	}

	handler, layer, ok := s.Matcher.Match(recipe, methodFamily, stderrTail, exitCode)
	if !ok {
		return
	}

	// chain_forward gates chain stitching; a
	// handler that leaves it unset classifies a one-off failure that
	// never opens or extends an escalation chain.
	var chainSummary *execengine.ChainSummary
	if handler.ChainForward != "" {
		if chainID == "" {
			chainID = s.Chains.Start(plan.ToolID)
		}
		_, _ = s.Chains.RecordAttempt(chainID, plan.ToolID, handler.FailureID, handler.Label, chain.NodeFailed)

		summary, _ := s.Chains.Summary(chainID)
		chainSummary = &summary
	}

	profile := s.Profiler.Current(ctx)
	response := s.Planner.Build(ctx, handler, layer, profile, chainSummary)

	event.Remediation = &response
	event.Chain = chainSummary
}

// recordExecutionAudit appends a write-before-ack audit entry for a
// finished plan execution.
func (s *Server) recordExecutionAudit(plan installplan.InstallPlan, action string, event execengine.ExecutionEvent) {
	if s.Audit == nil {
		return
	}
	entry := audit.Entry{
		Timestamp:   timeNow(),
		Actor:       "operator",
		Action:      action,
		Target:      plan.ToolID,
		AfterState:  map[string]interface{}{"ok": event.OK, "cancelled": event.Cancelled},
		OperationID: plan.PlanID,
	}
	if err := s.Audit.Record(entry); err != nil && s.Log != nil {
		s.Log.Error(err, "failed to append audit entry")
	}
}
