package toolkit

// =============================================================================
// Parameter Schema
// =============================================================================

// Schema describes a tool's parameters in JSON Schema shape. It marshals
// directly into the function-calling payload the model provider expects.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one parameter.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ObjectSchema builds an object schema from properties and required names.
func ObjectSchema(properties map[string]Property, required ...string) Schema {
	return Schema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

// TickerSchema is the parameter spec shared by the market-data tools:
// a single required stock ticker symbol.
func TickerSchema() Schema {
	return ObjectSchema(map[string]Property{
		"ticker": {
			Type:        "string",
			Description: "The stock ticker symbol (e.g., 'NVDA').",
		},
	}, "ticker")
}
