// Package validation provides pure validation functions for API handlers.
//
// This package contains the functional core logic for validating API
// requests. All functions are pure (no I/O, no side effects) and take
// plain values so that handlers stay the only layer touching requests.
//
// # Functions
//
//   - ValidateQueryFields: Validate a query request body
//   - ValidateCreateSessionFields: Validate session creation fields
//   - CanCancelRun: Check if a run can still be cancelled
//
// # Usage
//
// The API handlers use these functions before touching the store:
//
//	if field, msg := validation.ValidateQueryFields(req.Query); field != "" {
//	    // Return 400 Bad Request with msg
//	}
package validation
