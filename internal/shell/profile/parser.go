package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tickerlab/finsight/internal/core/agent"
	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Loading
// =============================================================================

// Load builds the agent team from the profile file at path. An empty path
// or a missing file yields the built-in default team, so deployments only
// carry a profile when they want to change something. Toolkits that are
// enabled but unavailable (no API key configured) are skipped, matching
// the default team's handling of optional backends.
func Load(path string, kits agent.DefaultToolkits) (*agent.Team, error) {
	if path == "" {
		return agent.DefaultTeam(kits), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return agent.DefaultTeam(kits), nil
		}
		return nil, fmt.Errorf("read team profile %s: %w", path, err)
	}

	team, err := Parse(content, kits)
	if err != nil {
		return nil, fmt.Errorf("team profile %s: %w", path, err)
	}
	return team, nil
}

// Parse converts raw profile YAML into a validated team. This is a pure
// function; file handling lives in Load.
func Parse(content []byte, kits agent.DefaultToolkits) (*agent.Team, error) {
	var spec Spec
	if err := yaml.Unmarshal(content, &spec); err != nil {
		return nil, NewProfileError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	if len(spec.Agents) == 0 {
		return nil, ErrNoAgents
	}

	members := make([]*agent.Agent, 0, len(spec.Agents))
	for i, entry := range spec.Agents {
		member, err := buildAgent(i, entry, kits)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	team := &agent.Team{
		Name:         spec.Team.Name,
		Instructions: spec.Team.Instructions,
		Members:      members,
		Model:        spec.Team.Model,
		Markdown:     true,
	}
	if team.Name == "" {
		team.Name = agent.DefaultTeamName
	}

	if err := team.Validate(); err != nil {
		return nil, err
	}
	return team, nil
}

// =============================================================================
// Agent Mapping
// =============================================================================

func buildAgent(index int, entry AgentSpec, kits agent.DefaultToolkits) (*agent.Agent, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return nil, NewProfileError(fmt.Sprintf("agents[%d]", index), "agent name is required", ErrAgentNoName)
	}
	if strings.TrimSpace(entry.Role) == "" {
		return nil, NewProfileError(name, "agent role is required", ErrAgentNoRole)
	}

	kits2, err := resolveToolkits(name, entry.Toolkits, kits)
	if err != nil {
		return nil, err
	}

	return &agent.Agent{
		Name:          name,
		Role:          entry.Role,
		Instructions:  entry.Instructions,
		Toolkits:      kits2,
		Model:         entry.Model,
		Markdown:      true,
		ShowToolCalls: true,
	}, nil
}

// resolveToolkits maps enable flags to toolkit backends in a fixed order
// so tool registration order is stable across runs.
func resolveToolkits(agentName string, flags map[string]bool, kits agent.DefaultToolkits) ([]*toolkit.Toolkit, error) {
	for key := range flags {
		switch key {
		case ToolkitWebSearch, ToolkitMarketData, ToolkitAlphaVantage:
		default:
			return nil, NewProfileError(agentName, fmt.Sprintf("unknown toolkit %q", key), ErrUnknownToolkit)
		}
	}

	var resolved []*toolkit.Toolkit
	if flags[ToolkitWebSearch] && kits.WebSearch != nil {
		resolved = append(resolved, kits.WebSearch)
	}
	if flags[ToolkitMarketData] && kits.MarketData != nil {
		resolved = append(resolved, kits.MarketData)
	}
	if flags[ToolkitAlphaVantage] && kits.AlphaVantage != nil {
		resolved = append(resolved, kits.AlphaVantage)
	}
	return resolved, nil
}
