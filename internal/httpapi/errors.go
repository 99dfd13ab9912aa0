package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cyberpunk042/devops-control-plane-sub010/internal/execengine"
	"github.com/cyberpunk042/devops-control-plane-sub010/pkg/opserr"
)

// writeError translates a core error into an HTTP status + JSON body
// via a single errors.As type-switch over the opserr kinds.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var notFound *opserr.RecipeNotFoundError
	var planErr *opserr.PlanResolutionError
	var execErr *opserr.ExecutionError
	var infraErr *opserr.InfraError
	var valErr *opserr.ValidationError
	var sudoErr *opserr.SudoSecretError

	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &planErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &valErr):
		status = http.StatusBadRequest
	case errors.As(err, &execErr), errors.As(err, &infraErr), errors.As(err, &sudoErr):
		status = http.StatusConflict
	case errors.Is(err, execengine.ErrQueueFull):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return opserr.NewValidationError("", "malformed request body", err)
	}
	return nil
}
