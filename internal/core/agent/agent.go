// Package agent defines the declarative agent and team model: agent specs,
// delegation tools and system prompt rendering. Everything here is pure;
// tool execution and model calls live in the shell.
package agent

import (
	"errors"
	"fmt"

	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// Team shape errors.
var (
	ErrNoMembers     = errors.New("team has no members")
	ErrDuplicateName = errors.New("duplicate agent name")
)

// =============================================================================
// Agent
// =============================================================================

// Agent is the declarative spec of one assistant: who it is, how it should
// answer and which toolkits it may call.
type Agent struct {
	Name          string
	Role          string
	Description   string
	Instructions  []string
	Toolkits      []*toolkit.Toolkit
	Model         string // empty uses the configured default model
	Markdown      bool
	ShowToolCalls bool
}

// Tools returns the agent's tools in toolkit registration order.
func (a *Agent) Tools() []toolkit.Tool {
	return toolkit.Flatten(a.Toolkits)
}

// FindTool locates one of the agent's tools by name.
func (a *Agent) FindTool(name string) (toolkit.Tool, bool) {
	return toolkit.Find(a.Toolkits, name)
}

// =============================================================================
// Team
// =============================================================================

// Team is a leader agent plus the members it can delegate to. The leader
// holds no toolkits of its own; its tools are the synthetic delegation
// functions derived from the member list.
type Team struct {
	Name         string
	Instructions []string
	Members      []*Agent
	Model        string // empty uses the configured default model
	Markdown     bool
}

// Member returns the named member agent.
func (t *Team) Member(name string) (*Agent, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// Validate checks the team is well formed: at least one member, and member
// names that stay distinct after snake_case conversion (the transfer tool
// namespace).
func (t *Team) Validate() error {
	if len(t.Members) == 0 {
		return ErrNoMembers
	}
	seen := make(map[string]string, len(t.Members))
	for _, m := range t.Members {
		if m.Name == "" {
			return fmt.Errorf("%w: member with empty name", ErrDuplicateName)
		}
		key := SnakeCase(m.Name)
		if other, ok := seen[key]; ok {
			return fmt.Errorf("%w: %q and %q share transfer tool %q",
				ErrDuplicateName, other, m.Name, TransferToolName(m.Name))
		}
		seen[key] = m.Name
	}
	return nil
}
