package domain

import "errors"

// Domain validation errors. Shell layers translate these to API responses;
// callers match them with errors.Is.
var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidMessage    = errors.New("invalid message")
	ErrInvalidRun        = errors.New("invalid run")
	ErrInvalidUsageEvent = errors.New("invalid usage event")
)
