package installplan

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
	"github.com/google/uuid"
)

// Resolver walks a recipe graph against a SystemProfile and produces an
// InstallPlan.
type Resolver struct {
	Registry *catalog.Registry
	Runner   CommandRunner
}

// NewResolver constructs a Resolver backed by the production CommandRunner.
func NewResolver(registry *catalog.Registry) *Resolver {
	return &Resolver{Registry: registry, Runner: NewCommandRunner()}
}

// pmNeedsSudoDefault names package managers that never need sudo (user- or
// self-managed installs), everything else defaults to sudo required.
var pmNeedsSudoDefault = map[systemprofile.PackageManagerKind]bool{
	systemprofile.PMBrew: false,
}

// Resolve walks the dependency graph for toolID, drops what the host
// already has, and emits steps in the fixed order: system packages,
// dependencies, target, advisory environment, verify.
func (r *Resolver) Resolve(ctx context.Context, toolID string, profile systemprofile.SystemProfile) (InstallPlan, error) {
	recipe, err := r.Registry.Lookup(toolID)
	if err != nil {
		return InstallPlan{}, err
	}

	plan := InstallPlan{
		PlanID:            uuid.New().String(),
		ToolID:            toolID,
		ProfileSnapshotID: snapshotID(profile),
		AdvisoryEphemeral: profile.Container.InContainer && profile.Container.Ephemeral,
	}

	if verify(ctx, r.Runner, recipe.Verify) {
		plan.AlreadyInstalled = true
		return plan, nil
	}

	depOrder, err := resolveDepOrder(r.Registry, toolID)
	if err != nil {
		return InstallPlan{}, err
	}
	deps := depOrder[:len(depOrder)-1] // excludes toolID itself

	var remainingDeps []string
	for _, dep := range deps {
		depRecipe, err := r.Registry.Lookup(dep)
		if err != nil {
			return InstallPlan{}, err
		}
		if verify(ctx, r.Runner, depRecipe.Verify) {
			continue
		}
		remainingDeps = append(remainingDeps, dep)
	}

	type selection struct {
		id         string
		recipe     catalog.Recipe
		methodKey  string
		spec       catalog.MethodSpec
	}

	selections := make([]selection, 0, len(remainingDeps)+1)
	for _, dep := range remainingDeps {
		depRecipe, _ := r.Registry.Lookup(dep)
		methodKey, ok := selectMethodFamily(depRecipe.Methods, depRecipe.MethodOrder, profile.PackageManager.Primary, profile.Arch)
		if !ok {
			return InstallPlan{}, opserr.NewPlanResolutionError(toolID, fmt.Sprintf("no viable install method for dependency %q on this profile", dep), nil)
		}
		selections = append(selections, selection{id: dep, recipe: depRecipe, methodKey: methodKey, spec: depRecipe.Methods[methodKey]})
	}

	targetMethodKey, ok := selectMethodFamily(recipe.Methods, recipe.MethodOrder, profile.PackageManager.Primary, profile.Arch)
	if !ok {
		return InstallPlan{}, opserr.NewPlanResolutionError(toolID, "no viable install method for this profile", nil)
	}
	targetSel := selection{id: toolID, recipe: recipe, methodKey: targetMethodKey, spec: recipe.Methods[targetMethodKey]}

	allSelections := append(append([]selection{}, selections...), targetSel)

	pkgSet := make(map[string]bool)
	for _, sel := range allSelections {
		for _, pkg := range sel.recipe.SystemPackagesByFamily[string(profile.Distro.Family)] {
			pkgSet[pkg] = true
		}
	}
	pkgs := make([]string, 0, len(pkgSet))
	for pkg := range pkgSet {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	missing := filterMissingPackages(ctx, r.Runner, profile.PackageManager.Primary, pkgs)

	var steps []InstallStep

	if len(missing) > 0 {
		cmd, ok := packageInstallCommand(profile.PackageManager.Primary, missing)
		if ok {
			needsSudo := pmNeedsSudo(profile.PackageManager.Primary)
			steps = append(steps, InstallStep{
				ID:           "system_pkgs",
				Kind:         StepSystemPkgs,
				Label:        "Install system packages: " + strings.Join(missing, ", "),
				Command:      cmd,
				NeedsSudo:    needsSudo,
				Timeout:      DefaultStepTimeout,
				ExpectedExit: ExpectZero,
			})
		}
	}

	var postEnv map[string]string
	for _, sel := range selections {
		cmd, needsSudo := methodCommand(sel.spec, sel.methodKey, profile.PackageManager.Primary, profile.Arch, sel.id)
		steps = append(steps, InstallStep{
			ID:           "install_dep_" + sel.id,
			Kind:         StepInstallDep,
			Label:        "Install dependency " + sel.id,
			Command:      cmd,
			NeedsSudo:    needsSudo,
			Timeout:      stepTimeout(sel.recipe),
			ExpectedExit: ExpectZero,
			Produces:     sel.id,
			MethodFamily: sel.methodKey,
		})
		if len(sel.spec.PostEnv) > 0 && postEnv == nil {
			postEnv = sel.spec.PostEnv
		}
	}

	{
		sel := targetSel
		cmd, needsSudo := methodCommand(sel.spec, sel.methodKey, profile.PackageManager.Primary, profile.Arch, sel.id)
		steps = append(steps, InstallStep{
			ID:           "install_target",
			Kind:         StepInstallTarget,
			Label:        "Install " + sel.id,
			Command:      cmd,
			NeedsSudo:    needsSudo,
			Timeout:      stepTimeout(sel.recipe),
			ExpectedExit: ExpectZero,
			Produces:     sel.id,
			MethodFamily: sel.methodKey,
		})
		if len(sel.spec.PostEnv) > 0 && postEnv == nil {
			postEnv = sel.spec.PostEnv
		}
	}

	if len(postEnv) > 0 {
		keys := make([]string, 0, len(postEnv))
		for k := range postEnv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, postEnv[k]))
		}
		steps = append(steps, InstallStep{
			ID:           "post_env",
			Kind:         StepPostEnv,
			Label:        "Advisory environment: " + strings.Join(parts, " "),
			Command:      nil,
			NeedsSudo:    false,
			Timeout:      0,
			ExpectedExit: ExpectAny,
		})
	}

	verifyTimeout := DefaultVerifyTimeout
	if recipe.VerifyTimeoutSeconds > 0 {
		verifyTimeout = secondsToDuration(recipe.VerifyTimeoutSeconds)
	}
	steps = append(steps, InstallStep{
		ID:           "verify",
		Kind:         StepVerify,
		Label:        "Verify " + toolID,
		Command:      recipe.Verify,
		NeedsSudo:    false,
		Timeout:      verifyTimeout,
		ExpectedExit: ExpectZero,
	})

	plan.Steps = steps
	for _, s := range steps {
		if s.NeedsSudo {
			plan.NeedsSudoOverall = true
			break
		}
	}

	return plan, nil
}

func pmNeedsSudo(pm systemprofile.PackageManagerKind) bool {
	if v, ok := pmNeedsSudoDefault[pm]; ok {
		return v
	}
	return true
}

func stepTimeout(recipe catalog.Recipe) time.Duration {
	if recipe.StepTimeoutSeconds > 0 {
		return secondsToDuration(recipe.StepTimeoutSeconds)
	}
	return DefaultStepTimeout
}

func secondsToDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}

// methodCommand resolves the argv and sudo requirement for one selected
// method. commands_by_pm is keyed the same as the method family itself;
// when the exact key is absent it falls back to the profile's primary
// package manager key, and finally to a synthesized binary-download
// command when the method is "binary".
func methodCommand(spec catalog.MethodSpec, methodKey string, primary systemprofile.PackageManagerKind, arch, toolID string) ([]string, bool) {
	if cmd, ok := spec.CommandsByPM[methodKey]; ok {
		return cmd, spec.NeedsSudoByPM[methodKey]
	}
	if cmd, ok := spec.CommandsByPM[string(primary)]; ok {
		return cmd, spec.NeedsSudoByPM[string(primary)]
	}
	if methodKey == binaryMethodKey && spec.BinaryURLTemplate != "" {
		url := strings.ReplaceAll(spec.BinaryURLTemplate, "{arch}", arch)
		return []string{"curl", "-fsSL", url, "-o", "/tmp/" + toolID + "-install"}, false
	}
	return []string{}, false
}

// packageInstallCommand builds the native "install these packages" argv
// for the primary package manager.
func packageInstallCommand(pm systemprofile.PackageManagerKind, pkgs []string) ([]string, bool) {
	switch pm {
	case systemprofile.PMApt:
		return append([]string{"apt-get", "install", "-y"}, pkgs...), true
	case systemprofile.PMDnf:
		return append([]string{"dnf", "install", "-y"}, pkgs...), true
	case systemprofile.PMYum:
		return append([]string{"yum", "install", "-y"}, pkgs...), true
	case systemprofile.PMApk:
		return append([]string{"apk", "add"}, pkgs...), true
	case systemprofile.PMPacman:
		return append([]string{"pacman", "-S", "--noconfirm"}, pkgs...), true
	case systemprofile.PMZypper:
		return append([]string{"zypper", "install", "-y"}, pkgs...), true
	case systemprofile.PMBrew:
		return append([]string{"brew", "install"}, pkgs...), true
	default:
		return nil, false
	}
}

// resolveDepOrder returns toolID's transitive dependencies followed by
// toolID itself, in an order where every dependency appears before
// anything that depends on it (DFS post-order, deterministic via sorted
// iteration), or a PlanResolutionError if the dependency graph contains a
// cycle.
func resolveDepOrder(registry *catalog.Registry, toolID string) ([]string, error) {
	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	var order []string
	var stack []string

	var dfs func(id string) error
	dfs = func(id string) error {
		visiting[id] = true
		stack = append(stack, id)

		recipe, err := registry.Lookup(id)
		if err != nil {
			return err
		}

		deps := append([]string(nil), recipe.Deps...)
		sort.Strings(deps)
		for _, dep := range deps {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				idx := indexOf(stack, dep)
				cycle := append([]string{}, stack[idx:]...)
				cycle = append(cycle, dep)
				return opserr.NewPlanResolutionError(toolID, "dependency cycle: "+strings.Join(cycle, " -> "), nil)
			}
			if err := dfs(dep); err != nil {
				return err
			}
		}

		visiting[id] = false
		visited[id] = true
		stack = stack[:len(stack)-1]
		order = append(order, id)
		return nil
	}

	if err := dfs(toolID); err != nil {
		return nil, err
	}
	return order, nil
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}

func snapshotID(profile systemprofile.SystemProfile) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%s|%s", profile.System, profile.Arch, profile.Distro.ID, profile.Distro.Version, profile.PackageManager.Primary, profile.Libraries.LibcType)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
