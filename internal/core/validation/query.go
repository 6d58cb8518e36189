package validation

import (
	"fmt"
	"strings"
)

// =============================================================================
// Query Validation Functions
// =============================================================================

// MaxQueryLength bounds a single query's size. Larger payloads are rejected
// before any model call happens.
const MaxQueryLength = 8192

// MaxSessionTitleLength bounds a caller-provided session title.
const MaxSessionTitleLength = 200

// ValidateQueryFields validates a query request body.
// Returns the field name and error message if validation fails.
// Returns empty strings if all fields are valid.
//
// Example:
//
//	field, msg := ValidateQueryFields(req.Query)
//	if field != "" {
//	    // Handle validation error
//	}
func ValidateQueryFields(query string) (field, message string) {
	if strings.TrimSpace(query) == "" {
		return "query", "query is required"
	}
	if len(query) > MaxQueryLength {
		return "query", fmt.Sprintf("query exceeds %d characters", MaxQueryLength)
	}
	return "", ""
}

// ValidateCreateSessionFields validates session creation fields. The title
// is optional; when present it must fit the column.
func ValidateCreateSessionFields(title string) (field, message string) {
	if len(title) > MaxSessionTitleLength {
		return "title", fmt.Sprintf("title exceeds %d characters", MaxSessionTitleLength)
	}
	return "", ""
}

// CanCancelRun checks if a run in the given status can still be cancelled.
// Only pending and running runs can; terminal runs cannot.
// Returns whether cancellation is allowed and an optional reason if not.
func CanCancelRun(status string) (allowed bool, reason string) {
	switch status {
	case "pending", "running":
		return true, ""
	default:
		return false, fmt.Sprintf("run is already %s", status)
	}
}
