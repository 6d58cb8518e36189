package profile

// =============================================================================
// YAML Document Types
// =============================================================================

// Spec is the root document of a team profile file.
type Spec struct {
	Team   TeamSpec    `yaml:"team"`
	Agents []AgentSpec `yaml:"agents"`
}

// TeamSpec overrides the leader's identity. An empty name keeps the
// built-in team name.
type TeamSpec struct {
	Name         string   `yaml:"name"`
	Model        string   `yaml:"model"`
	Instructions []string `yaml:"instructions"`
}

// AgentSpec declares one member agent. Toolkits maps toolkit keys to
// enable flags; keys that are absent or false leave the toolkit off.
type AgentSpec struct {
	Name         string          `yaml:"name"`
	Role         string          `yaml:"role"`
	Model        string          `yaml:"model"`
	Instructions []string        `yaml:"instructions"`
	Toolkits     map[string]bool `yaml:"toolkits"`
}

// Toolkit keys accepted in AgentSpec.Toolkits.
const (
	ToolkitWebSearch    = "web_search"
	ToolkitMarketData   = "market_data"
	ToolkitAlphaVantage = "alpha_vantage"
)
