package installplan

import (
	"context"
	"os/exec"
	"sort"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
	"golang.org/x/sync/semaphore"
)

// maxConcurrentProbes bounds the fan-out when checking package presence,
// mirroring the executor pool's semaphore-based bound.
const maxConcurrentProbes = 8

// CommandRunner abstracts subprocess invocation so tests can substitute a
// fake, matching the injectable-seam style of systemprofile.Detector.
type CommandRunner interface {
	// Run executes name with args and reports whether it exited 0.
	Run(ctx context.Context, name string, args ...string) bool
	// LookPath reports whether a binary is on PATH.
	LookPath(name string) bool
}

// execRunner is the production CommandRunner, backed by os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) bool {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run() == nil
}

func (execRunner) LookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// NewCommandRunner returns the production CommandRunner.
func NewCommandRunner() CommandRunner { return execRunner{} }

// packageQueryArgs returns the argv used to test whether pkg is already
// installed for the given package manager.
func packageQueryArgs(pm systemprofile.PackageManagerKind, pkg string) (string, []string, bool) {
	switch pm {
	case systemprofile.PMApt:
		return "dpkg-query", []string{"-W", "-f=${Status}", pkg}, true
	case systemprofile.PMDnf, systemprofile.PMYum:
		return "rpm", []string{"-q", pkg}, true
	case systemprofile.PMApk:
		return "apk", []string{"info", "-e", pkg}, true
	case systemprofile.PMPacman:
		return "pacman", []string{"-Q", pkg}, true
	case systemprofile.PMZypper:
		return "rpm", []string{"-q", pkg}, true
	case systemprofile.PMBrew:
		return "brew", []string{"list", pkg}, true
	default:
		return "", nil, false
	}
}

// filterMissingPackages queries the host for each candidate package in
// parallel (bounded) and returns only the ones not already installed, in
// deterministic sorted order.
func filterMissingPackages(ctx context.Context, runner CommandRunner, pm systemprofile.PackageManagerKind, packages []string) []string {
	if len(packages) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(maxConcurrentProbes)
	missing := make([]bool, len(packages))
	done := make(chan int, len(packages))

	for i, pkg := range packages {
		i, pkg := i, pkg
		if err := sem.Acquire(ctx, 1); err != nil {
			missing[i] = true
			done <- i
			continue
		}
		go func() {
			defer sem.Release(1)
			defer func() { done <- i }()

			name, args, ok := packageQueryArgs(pm, pkg)
			if !ok {
				missing[i] = true
				return
			}
			missing[i] = !runner.Run(ctx, name, args...)
		}()
	}

	for range packages {
		<-done
	}

	var result []string
	for i, pkg := range packages {
		if missing[i] {
			result = append(result, pkg)
		}
	}
	sort.Strings(result)
	return result
}

// CheckPackages probes the host for each candidate package (bounded
// concurrency) and splits them into installed/missing, both sorted, for
// the check-deps HTTP endpoint.
func CheckPackages(ctx context.Context, runner CommandRunner, pm systemprofile.PackageManagerKind, packages []string) (installed, missing []string) {
	missing = filterMissingPackages(ctx, runner, pm, packages)
	missingSet := make(map[string]bool, len(missing))
	for _, m := range missing {
		missingSet[m] = true
	}
	for _, pkg := range packages {
		if !missingSet[pkg] {
			installed = append(installed, pkg)
		}
	}
	sort.Strings(installed)
	return installed, missing
}

// verify reports whether a verify/which command exits 0, i.e. whether the
// tool it checks is already present.
func verify(ctx context.Context, runner CommandRunner, command []string) bool {
	if len(command) == 0 {
		return false
	}
	return runner.Run(ctx, command[0], command[1:]...)
}
