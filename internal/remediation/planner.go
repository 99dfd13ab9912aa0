package remediation

import (
	"context"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/installplan"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
)

// Availability is one option's computed usability against the live
// profile.
const (
	AvailabilityReady      = "ready"
	AvailabilityLocked     = "locked"
	AvailabilityImpossible = "impossible"
)

// failureIDsPrecludingRetry names infra failures the operator cannot
// just retry past without first taking action elsewhere.
var failureIDsPrecludingRetry = map[string]bool{
	"disk_full": true,
}

// Planner builds the user-facing RemediationResponse once the Matcher
// has classified a failure.
type Planner struct {
	Resolver *installplan.Resolver
}

// NewPlanner constructs a Planner backed by the given Resolver, used to
// hypothetically resolve step_count for options that name a prerequisite
// tool, without ever executing that plan.
func NewPlanner(resolver *installplan.Resolver) *Planner {
	return &Planner{Resolver: resolver}
}

// Build assembles the RemediationResponse for a matched failure handler
// against the given profile. chain may be nil when no escalation chain
// is open for this tool/failure pair yet.
func (p *Planner) Build(ctx context.Context, handler catalog.FailureHandler, layer MatchedLayer, profile systemprofile.SystemProfile, chain *execengine.ChainSummary) execengine.RemediationResponse {
	items := make([]execengine.RemediationItem, 0, len(handler.Options))
	recommendedAssigned := false
	loopDetected := chain != nil && chain.LoopDetected

	for _, opt := range handler.Options {
		item := p.buildItem(ctx, opt, profile)
		if loopDetected && opt.Strategy != "manual_prereq" {
			item.Availability = AvailabilityImpossible
			item.LockReason = "this escalation chain has looped back to a failure it already saw"
		}
		if item.Recommended {
			if recommendedAssigned {
				item.Recommended = false
			} else {
				recommendedAssigned = true
			}
		}
		items = append(items, item)
	}

	return execengine.RemediationResponse{
		Failure: execengine.FailureSummary{
			FailureID:    handler.FailureID,
			Category:     handler.Category,
			Label:        handler.Label,
			Description:  handler.Description,
			MatchedLayer: string(layer),
		},
		Options:  items,
		Chain:    chain,
		Fallback: fallbackActions(handler),
	}
}

func (p *Planner) buildItem(ctx context.Context, opt catalog.RemediationOption, profile systemprofile.SystemProfile) execengine.RemediationItem {
	prereqInstalled := false
	if opt.LockPrerequisite != "" && p.Resolver != nil {
		if plan, err := p.Resolver.Resolve(ctx, opt.LockPrerequisite, profile); err == nil {
			prereqInstalled = plan.AlreadyInstalled
		}
	}
	availability, lockReason := availabilityOf(opt, profile, prereqInstalled)

	return execengine.RemediationItem{
		ID:           opt.ID,
		Label:        opt.Label,
		Icon:         opt.Icon,
		Strategy:     opt.Strategy,
		Risk:         string(opt.Risk),
		Availability: availability,
		LockReason:   lockReason,
		StepCount:    p.stepCount(ctx, opt, profile),
		Recommended:  opt.Recommended,
	}
}

// availabilityOf computes an option's ready/locked/impossible state and,
// when locked or impossible, the human-facing reason.
func availabilityOf(opt catalog.RemediationOption, profile systemprofile.SystemProfile, prereqInstalled bool) (string, string) {
	if opt.RequiredCapability == "sudo" && !profile.CanEscalate() {
		return AvailabilityImpossible, "this host has no usable sudo or root privileges"
	}

	if pkgs, ok := opt.RequiredSystemPackagesByFam[string(profile.Distro.Family)]; ok && len(pkgs) > 0 {
		return AvailabilityLocked, "requires system packages: " + joinComma(pkgs)
	}

	if opt.LockPrerequisite != "" && !prereqInstalled {
		return AvailabilityLocked, opt.LockPrerequisite + " is not installed"
	}

	return AvailabilityReady, ""
}

func joinComma(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}

// stepCount hypothetically resolves the option's prerequisite tool (if
// any) to get a real step count, without ever passing the plan to the
// Engine. Options with no prerequisite fall back to their declarative
// estimate.
func (p *Planner) stepCount(ctx context.Context, opt catalog.RemediationOption, profile systemprofile.SystemProfile) int {
	if opt.LockPrerequisite != "" && p.Resolver != nil {
		plan, err := p.Resolver.Resolve(ctx, opt.LockPrerequisite, profile)
		if err == nil {
			return len(plan.Steps)
		}
	}
	if opt.StepCountEstimate > 0 {
		return opt.StepCountEstimate
	}
	return 1
}

// fallbackActions always offers cancel and manual; retry is withheld for
// infra failures that require operator action elsewhere first.
func fallbackActions(handler catalog.FailureHandler) execengine.FallbackActions {
	actions := []string{"cancel", "manual"}
	if !failureIDsPrecludingRetry[handler.FailureID] {
		actions = append([]string{"retry"}, actions...)
	}
	return execengine.FallbackActions{Actions: actions}
}
