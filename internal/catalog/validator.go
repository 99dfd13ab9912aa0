package catalog

import (
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	toolIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)
)

// validatorInstance returns the shared validator used across recipe and
// config loading, registering the catalog's custom rules exactly once.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("tool_id", func(fl validator.FieldLevel) bool {
			return toolIDPattern.MatchString(fl.Field().String())
		})
		validateInst = v
	})
	return validateInst
}

// Validate returns the shared validator instance for use outside this
// package (e.g. by internal/appconfig for settings validation).
func Validate() *validator.Validate {
	return validatorInstance()
}
