// Package installplan walks a recipe graph against a system profile and
// resolves it into an ordered, deduplicated InstallPlan.
package installplan

import "time"

// StepKind identifies what an InstallStep does.
type StepKind string

const (
	StepSystemPkgs    StepKind = "system_pkgs"
	StepInstallDep    StepKind = "install_dep"
	StepInstallTarget StepKind = "install_target"
	StepPostEnv       StepKind = "post_env"
	StepVerify        StepKind = "verify"
)

// ExpectedExit is either a hard requirement of exit code 0, or "any".
type ExpectedExit string

const (
	ExpectZero ExpectedExit = "0"
	ExpectAny  ExpectedExit = "any"
)

// InstallStep is one atomic unit the Executor runs.
type InstallStep struct {
	ID           string        `json:"id"`
	Kind         StepKind      `json:"kind"`
	Label        string        `json:"label"`
	Command      []string      `json:"command"`
	NeedsSudo    bool          `json:"needs_sudo"`
	Timeout      time.Duration `json:"timeout"`
	ExpectedExit ExpectedExit  `json:"expected_exit"`
	Produces     string        `json:"produces,omitempty"`
	// MethodFamily is the catalog method key selected for this step
	// (install_dep/install_target only), so a failure handler lookup
	// can find the right method-family layer without re-resolving.
	MethodFamily string `json:"method_family,omitempty"`
}

// InstallPlan is an ordered list of InstallSteps plus metadata.
type InstallPlan struct {
	PlanID            string        `json:"plan_id"`
	ToolID            string        `json:"tool_id"`
	ProfileSnapshotID string        `json:"profile_snapshot_id"`
	Steps             []InstallStep `json:"steps"`
	AlreadyInstalled  bool          `json:"already_installed"`
	NeedsSudoOverall  bool          `json:"needs_sudo_overall"`
	AdvisoryEphemeral bool          `json:"advisory_ephemeral,omitempty"`
}

// DefaultStepTimeout is used when a recipe does not override it.
const DefaultStepTimeout = 300 * time.Second

// DefaultVerifyTimeout is used when a recipe does not override it.
const DefaultVerifyTimeout = 30 * time.Second
