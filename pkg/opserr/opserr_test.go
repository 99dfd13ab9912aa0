package opserr

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecipeNotFoundErrorMessage(t *testing.T) {
	t.Parallel()

	err := NewRecipeNotFoundError("ruff")

	var rnf *RecipeNotFoundError
	require.ErrorAs(t, err, &rnf)
	require.Equal(t, "ruff", rnf.ToolID)
	require.Contains(t, err.Error(), "ruff")
}

func TestPlanResolutionErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("cycle at cargo-audit")
	err := NewPlanResolutionError("cargo-audit", "dependency cycle", underlying)

	var planErr *PlanResolutionError
	require.ErrorAs(t, err, &planErr)
	require.Equal(t, "plan", planErr.Category())
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "cargo-audit")
}

func TestExecutionErrorIncludesStepAndExitCode(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("command failed")
	err := NewExecutionError("install_target", 1, underlying)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "install_target", execErr.StepID)
	require.Equal(t, 1, execErr.ExitCode)
	require.True(t, stdErrors.Is(err, underlying))
}

func TestInfraErrorUnwraps(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("no space left on device")
	err := NewInfraError("disk_full", underlying)

	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "disk_full")
}

func TestCacheErrorCarriesCard(t *testing.T) {
	t.Parallel()

	err := NewCacheError("wiz:detect", stdErrors.New("permission denied"))

	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	require.Equal(t, "wiz:detect", cacheErr.Card)
}

func TestAuditErrorWraps(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("disk full")
	err := NewAuditError(underlying)

	require.True(t, stdErrors.Is(err, underlying))
}

func TestSudoSecretErrorNamesStep(t *testing.T) {
	t.Parallel()

	err := NewSudoSecretError("system_pkgs")

	var sudoErr *SudoSecretError
	require.ErrorAs(t, err, &sudoErr)
	require.Equal(t, "system_pkgs", sudoErr.StepID)
}

func TestValidationErrorFieldFormatting(t *testing.T) {
	t.Parallel()

	err := NewValidationError("recipes[cargo-audit].on_failure[0].pattern", "invalid regex", nil)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Contains(t, err.Error(), "recipes[cargo-audit]")
}
