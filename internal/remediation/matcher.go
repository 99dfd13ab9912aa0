// Package remediation implements the Handler Matcher and Remediation
// Planner: classifying a failed step against a recipe's own handlers
// and the global infrastructure table, then building the user-facing
// RemediationResponse.
package remediation

import (
	"regexp"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/catalog"
)

// MatchedLayer records which tier of the handler table matched.
type MatchedLayer string

const (
	LayerMethodFamily  MatchedLayer = "method_family"
	LayerRecipeGeneric MatchedLayer = "recipe_generic"
	LayerInfra         MatchedLayer = "infra"
	LayerNone          MatchedLayer = "none"
)

// Matcher classifies a failed step against a recipe's handlers and the
// global infra table: method-family handlers first, then the recipe's
// generic handlers, then infrastructure handlers.
type Matcher struct{}

// NewMatcher constructs a Matcher. It is stateless; the zero value works.
func NewMatcher() *Matcher { return &Matcher{} }

// Match returns the first handler whose exit-code/pattern condition is
// satisfied, and the layer it was found at. ok is false when nothing
// matches, the unhandled outcome.
func (m *Matcher) Match(recipe catalog.Recipe, methodFamily string, stderrTail string, exitCode int) (catalog.FailureHandler, MatchedLayer, bool) {
	if h, ok := matchInOrder(filterByFamily(recipe.OnFailure, methodFamily), stderrTail, exitCode); ok {
		return h, LayerMethodFamily, true
	}
	if h, ok := matchInOrder(filterGeneric(recipe.OnFailure), stderrTail, exitCode); ok {
		return h, LayerRecipeGeneric, true
	}
	if h, ok := matchInOrder(catalog.InfraHandlers, stderrTail, exitCode); ok {
		return h, LayerInfra, true
	}
	return catalog.FailureHandler{}, LayerNone, false
}

func filterByFamily(handlers []catalog.FailureHandler, methodFamily string) []catalog.FailureHandler {
	if methodFamily == "" {
		return nil
	}
	var out []catalog.FailureHandler
	for _, h := range handlers {
		if h.MethodFamily == methodFamily {
			out = append(out, h)
		}
	}
	return out
}

func filterGeneric(handlers []catalog.FailureHandler) []catalog.FailureHandler {
	var out []catalog.FailureHandler
	for _, h := range handlers {
		if h.MethodFamily == "" {
			out = append(out, h)
		}
	}
	return out
}

func matchInOrder(handlers []catalog.FailureHandler, stderrTail string, exitCode int) (catalog.FailureHandler, bool) {
	for _, h := range handlers {
		if h.ExitCode != nil && *h.ExitCode != exitCode {
			continue
		}
		re, err := regexp.Compile(h.Pattern)
		if err != nil {
			continue // invalid patterns are rejected at registry load
		}
		if re.MatchString(stderrTail) {
			return h, true
		}
	}
	return catalog.FailureHandler{}, false
}
