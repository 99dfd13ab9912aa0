package catalog

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
)

// Registry is the immutable, process-wide catalog of recipes, keyed by
// tool ID. It is built once at startup and never mutated afterward, so
// Lookup and AllIDs require no locking.
type Registry struct {
	recipes map[string]Recipe
}

// LoadError describes one recipe that failed to load or validate. Startup
// collects every LoadError across the catalog directory before failing,
// so an operator sees every broken file in one pass.
type LoadError struct {
	Source string
	Err    error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

// NewRegistry validates and indexes a flat list of recipes. Validation
// failures are fatal: every dep must resolve to another
// recipe in the same set, failure_id must be unique within a recipe, every
// pattern must be a valid regex, and every declared example stderr must
// match its handler's pattern.
func NewRegistry(recipes []Recipe) (*Registry, []LoadError) {
	reg := &Registry{recipes: make(map[string]Recipe, len(recipes))}
	var loadErrs []LoadError

	v := validatorInstance()
	for _, r := range recipes {
		if err := v.Struct(r); err != nil {
			loadErrs = append(loadErrs, LoadError{Source: r.ID, Err: err})
			continue
		}
		if _, exists := reg.recipes[r.ID]; exists {
			loadErrs = append(loadErrs, LoadError{Source: r.ID, Err: fmt.Errorf("duplicate recipe id")})
			continue
		}
		reg.recipes[r.ID] = r
	}

	if len(loadErrs) > 0 {
		return reg, loadErrs
	}

	for _, r := range recipes {
		if errs := validateRecipeInvariants(r, reg.recipes); len(errs) > 0 {
			loadErrs = append(loadErrs, errs...)
		}
	}

	return reg, loadErrs
}

func validateRecipeInvariants(r Recipe, all map[string]Recipe) []LoadError {
	var errs []LoadError

	for _, dep := range r.Deps {
		if _, ok := all[dep]; !ok {
			errs = append(errs, LoadError{Source: r.ID, Err: fmt.Errorf("dependency %q does not resolve to a recipe", dep)})
		}
	}

	seenFailureID := make(map[string]bool, len(r.OnFailure))
	for _, h := range r.OnFailure {
		if seenFailureID[h.FailureID] {
			errs = append(errs, LoadError{Source: r.ID, Err: fmt.Errorf("duplicate failure_id %q", h.FailureID)})
			continue
		}
		seenFailureID[h.FailureID] = true

		re, err := regexp.Compile(h.Pattern)
		if err != nil {
			errs = append(errs, LoadError{Source: r.ID, Err: fmt.Errorf("handler %q: invalid pattern: %w", h.FailureID, err)})
			continue
		}

		example, ok := r.ExampleStderrByFailure[h.FailureID]
		if !ok {
			errs = append(errs, LoadError{Source: r.ID, Err: fmt.Errorf("handler %q: missing example_stderr_by_failure_id entry", h.FailureID)})
			continue
		}
		if !re.MatchString(example) {
			errs = append(errs, LoadError{Source: r.ID, Err: fmt.Errorf("handler %q: pattern does not match its own example stderr", h.FailureID)})
		}
	}

	return errs
}

// Lookup returns the recipe for a tool ID, or a RecipeNotFoundError.
func (reg *Registry) Lookup(toolID string) (Recipe, error) {
	r, ok := reg.recipes[toolID]
	if !ok {
		return Recipe{}, opserr.NewRecipeNotFoundError(toolID)
	}
	return r, nil
}

// AllIDs returns every registered tool ID in sorted order.
func (reg *Registry) AllIDs() []string {
	ids := make([]string, 0, len(reg.recipes))
	for id := range reg.recipes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
