package domain

import (
	"strings"
	"time"
	"unicode"
)

// =============================================================================
// Session
// =============================================================================

// MaxTitleLength is the longest session title derived from a query.
const MaxTitleLength = 60

// DefaultSessionTitle is used until the first query names the session.
const DefaultSessionTitle = "New conversation"

// Session represents one conversation with the assistant. Messages and runs
// hang off a session; deleting the session cascades to both.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates a session titled after the first query.
func NewSession(firstQuery string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        NewID(SessionIDPrefix),
		Title:     DeriveTitle(firstQuery),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch bumps the session's UpdatedAt. Called whenever a message is appended
// so the retention pruner sees the session as active.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UTC()
}

// DeriveTitle produces a session title from a query: whitespace collapsed,
// truncated on a word boundary where possible, capped at MaxTitleLength.
func DeriveTitle(query string) string {
	title := strings.Join(strings.Fields(query), " ")
	if title == "" {
		return DefaultSessionTitle
	}
	if len(title) <= MaxTitleLength {
		return title
	}

	cut := title[:MaxTitleLength]
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > MaxTitleLength/2 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " ") + "…"
}
