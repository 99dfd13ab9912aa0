package httpapi

import (
	"time"

	"github.com/google/uuid"
)

// timeNow is a seam so tests can stub wall-clock time without reaching
// into audit internals; production always uses time.Now.
var timeNow = func() time.Time { return time.Now() }

// newOperationID mints a correlation ID for audit entries not already
// tied to an existing plan_id (e.g. cache bust).
func newOperationID() string { return uuid.New().String() }
