package catalog

// InfraHandlers is the global, cross-cutting failure handler table:
// conditions that are matched independently of the tool recipe being
// installed, such as disk exhaustion or a missing sudo binary. It is
// consulted only after a recipe's own method-family and generic
// handlers fail to match.
var InfraHandlers = []FailureHandler{
	{
		FailureID:   "disk_full",
		Category:    "infrastructure",
		Label:       "Disk full",
		Description: "The target filesystem has no space left for the install.",
		Pattern:     `(?i)no space left on device`,
		Options: []RemediationOption{
			{ID: "free_disk_space", Label: "Free up disk space and retry", Strategy: "manual_prereq", Risk: RiskLow, Recommended: true},
		},
	},
	{
		FailureID:   "oom_killed",
		Category:    "infrastructure",
		Label:       "Process killed (out of memory)",
		Description: "The install process was killed by the kernel OOM killer.",
		ExitCode:    intPtr(137),
		Pattern:     `(?i)killed|out of memory`,
		Options: []RemediationOption{
			{ID: "retry_with_lower_parallelism", Label: "Retry with reduced parallelism", Strategy: "retry", Risk: RiskLow, Recommended: true},
		},
	},
	{
		FailureID:   "dns_network_error",
		Category:    "infrastructure",
		Label:       "Network or DNS failure",
		Description: "A download or package-manager step could not reach the network.",
		Pattern:     `(?i)could not resolve host|network is unreachable|connection timed out|temporary failure in name resolution`,
		Options: []RemediationOption{
			{ID: "check_network_and_retry", Label: "Check network connectivity and retry", Strategy: "retry", Risk: RiskLow, Recommended: true},
		},
	},
	{
		FailureID:   "permission_denied",
		Category:    "infrastructure",
		Label:       "Permission denied",
		Description: "The step lacked permission to write to the target location.",
		Pattern:     `(?i)permission denied`,
		Options: []RemediationOption{
			{ID: "rerun_with_sudo", Label: "Re-run the step with sudo", Strategy: "elevate", Risk: RiskMedium, RequiredCapability: "sudo"},
		},
	},
	{
		FailureID:   "sudo_wrong_password",
		Category:    "infrastructure",
		Label:       "sudo authentication failed",
		Description: "The sudo password was missing or incorrect for a step requiring elevated privileges.",
		Pattern:     `(?i)sorry, try again|incorrect password attempt|a password is required|no password was provided`,
		Options: []RemediationOption{
			{ID: "retry_with_password", Label: "Retry with the correct sudo password", Strategy: "retry_with_password", Risk: RiskLow, Recommended: true},
		},
	},
	{
		FailureID:   "sudo_missing",
		Category:    "infrastructure",
		Label:       "sudo is not installed",
		Description: "The step requires sudo but no sudo binary is on PATH.",
		Pattern:     `(?i)sudo: command not found|sudo: not found`,
		Options: []RemediationOption{
			{ID: "install_sudo_as_root", Label: "Install sudo as root, then retry", Strategy: "manual_prereq", Risk: RiskMedium},
		},
	},
	{
		FailureID:   "dpkg_locked",
		Category:    "infrastructure",
		Label:       "Package manager is locked",
		Description: "Another process holds the dpkg/apt lock.",
		Pattern:     `(?i)could not get lock|resource temporarily unavailable.*dpkg`,
		Options: []RemediationOption{
			{ID: "wait_and_retry", Label: "Wait for the other process to finish and retry", Strategy: "retry", Risk: RiskLow, Recommended: true},
		},
	},
}

func intPtr(v int) *int { return &v }
