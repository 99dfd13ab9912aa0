package installplan

import (
	"sort"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
	"github.com/cyberpunk042/devops-control-plane-sub010/internal/systemprofile"
)

const defaultMethodKey = "_default"
const binaryMethodKey = "binary"

// nativePackageManagerKeys are method keys that name an actual host package
// manager. A method keyed this way is only viable when it equals the
// profile's own primary package manager — unlike a cross-platform
// strategy key (pip, cargo, npm, pipx, bash-curl-script, ...), which
// installs by its own means regardless of the host's native pm and is
// therefore always a candidate.
var nativePackageManagerKeys = map[string]bool{
	string(systemprofile.PMApt):    true,
	string(systemprofile.PMDnf):    true,
	string(systemprofile.PMYum):    true,
	string(systemprofile.PMApk):    true,
	string(systemprofile.PMPacman): true,
	string(systemprofile.PMZypper): true,
	string(systemprofile.PMBrew):   true,
	string(systemprofile.PMChoco):  true,
	string(systemprofile.PMWinget): true,
}

// selectMethodFamily picks a method family key from a recipe's methods
// map: the primary package manager's key, falling back to
// _default, then binary if the architecture is supported. If none of those
// match, any declared cross-platform strategy key (one that doesn't name a
// native package manager) is still viable regardless of host pm — the
// recipe's method_order breaks ties among those, falling back to
// lexicographic order for determinism.
// If nothing matches at all, the caller reports NoViableMethod.
func selectMethodFamily(methods map[string]catalog.MethodSpec, methodOrder []string, primary systemprofile.PackageManagerKind, arch string) (string, bool) {
	if _, ok := methods[string(primary)]; ok {
		return string(primary), true
	}
	if _, ok := methods[defaultMethodKey]; ok {
		return defaultMethodKey, true
	}
	if spec, ok := methods[binaryMethodKey]; ok && archSupported(spec, arch) {
		return binaryMethodKey, true
	}

	for _, key := range methodOrder {
		if key == defaultMethodKey || key == binaryMethodKey || nativePackageManagerKeys[key] {
			continue
		}
		if _, ok := methods[key]; ok {
			return key, true
		}
	}

	var candidates []string
	for key := range methods {
		if key == defaultMethodKey || key == binaryMethodKey || nativePackageManagerKeys[key] {
			continue
		}
		candidates = append(candidates, key)
	}
	if len(candidates) == 0 {
		return "", false
	}
	sort.Strings(candidates)
	return candidates[0], true
}

func archSupported(spec catalog.MethodSpec, arch string) bool {
	if spec.BinaryURLTemplate == "" {
		return false
	}
	if len(spec.BinaryArchs) == 0 {
		return true
	}
	for _, a := range spec.BinaryArchs {
		if a == arch {
			return true
		}
	}
	return false
}
