// Package domain defines core domain types for Finsight.
package domain

import (
	"github.com/google/uuid"
)

// =============================================================================
// ID Generation
// =============================================================================

// ID prefixes per entity type. Short UUID suffixes keep identifiers readable
// in logs and URLs while staying unique enough for a single-node store.
const (
	SessionIDPrefix = "sess"
	MessageIDPrefix = "msg"
	RunIDPrefix     = "run"
	EventIDPrefix   = "evt"
)

// NewID generates an identifier of the form "<prefix>_<8 hex chars>".
func NewID(prefix string) string {
	return prefix + "_" + uuid.New().String()[:8]
}
