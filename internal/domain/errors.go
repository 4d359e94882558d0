package domain

import "errors"

// ErrNotFound the platform has no such resource
var ErrNotFound = errors.New("resource not found")

// ErrForbidden the learner lacks access, e.g. a paid lesson without enrollment
var ErrForbidden = errors.New("access denied")

// ErrValidation the request payload was rejected, the message carries the
// upstream reason verbatim
var ErrValidation = errors.New("validation failed")

// ErrUnavailable the platform could not be reached or answered with a server error
var ErrUnavailable = errors.New("platform unavailable")

// ErrFlowConflict a completion flow is already active for the lesson
var ErrFlowConflict = errors.New("completion already in progress for this lesson")

// ErrFlowState the requested operation is not legal in the flow's current state
var ErrFlowState = errors.New("operation not allowed in current flow state")

// ErrFlowNotFound unknown flow id, the flow may have finished or been cancelled
var ErrFlowNotFound = errors.New("no such completion flow")
