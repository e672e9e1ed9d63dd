package attempt

import "errors"

// Attempt lifecycle errors. Callers match with errors.Is; returned values may
// wrap these with detail.
var (
	ErrInvalidTransition         = errors.New("invalid attempt state transition")
	ErrExamNotInProgress         = errors.New("exam attempt is not in progress")
	ErrResultsNotAvailable       = errors.New("results are not available")
	ErrAttemptLimitExceeded      = errors.New("attempt limit exceeded")
	ErrSchedulingWindowViolation = errors.New("exam is outside its scheduled window")
)
