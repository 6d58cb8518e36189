package domain

import (
	"fmt"
	"time"
)

// =============================================================================
// Message Roles
// =============================================================================

// Role identifies who authored a message in a session transcript.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ValidRoles lists every role a persisted message may carry. System and tool
// messages exist only inside a run's model context and are never stored.
var ValidRoles = []Role{RoleUser, RoleAssistant}

// IsValid returns true if the role is a known persisted role.
func (r Role) IsValid() bool {
	for _, valid := range ValidRoles {
		if r == valid {
			return true
		}
	}
	return false
}

// =============================================================================
// Message
// =============================================================================

// Message is one turn of a session transcript.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message in the given session.
func NewMessage(sessionID string, role Role, content string) (*Message, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidMessage)
	}
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, role)
	}
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	return &Message{
		ID:        NewID(MessageIDPrefix),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}, nil
}
