package models

import "errors"

// Error taxonomy shared by the lifecycle, assignment and scoring packages.
// Callers classify with errors.Is; messages carry the specifics.
var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("forbidden")
	ErrConflict             = errors.New("conflict")
	ErrValidation           = errors.New("validation failed")
	ErrTimeoutExpired       = errors.New("deadline expired")
	ErrScoringUnavailable   = errors.New("scoring unavailable")
	ErrEvaluationInProgress = errors.New("evaluation already in progress")
)
