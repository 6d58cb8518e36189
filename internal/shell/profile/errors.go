// Package profile loads optional YAML team profiles that override the
// built-in research team: agent names, roles, instructions and which
// toolkits each agent carries.
package profile

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrInvalidYAML indicates the profile file is not valid YAML.
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrNoAgents indicates the profile defines an empty team.
	ErrNoAgents = errors.New("profile must define at least one agent")

	// ErrAgentNoName indicates an agent entry without a name.
	ErrAgentNoName = errors.New("agent name is required")

	// ErrAgentNoRole indicates an agent entry without a role.
	ErrAgentNoRole = errors.New("agent role is required")

	// ErrUnknownToolkit indicates an agent references a toolkit key the
	// service does not provide.
	ErrUnknownToolkit = errors.New("unknown toolkit")
)

// ProfileError wraps profile errors with the offending agent so operators
// can find the bad entry without reading the whole file.
type ProfileError struct {
	Agent   string // agent name, or a positional label like "agents[2]"
	Message string
	Err     error
}

func (e *ProfileError) Error() string {
	if e.Agent != "" {
		return fmt.Sprintf("agent %q: %s", e.Agent, e.Message)
	}
	return e.Message
}

func (e *ProfileError) Unwrap() error {
	return e.Err
}

// NewProfileError creates a new ProfileError.
func NewProfileError(agent, message string, err error) *ProfileError {
	return &ProfileError{
		Agent:   agent,
		Message: message,
		Err:     err,
	}
}
