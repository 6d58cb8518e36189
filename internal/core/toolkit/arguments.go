package toolkit

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Tool Call Arguments
// =============================================================================

// Arguments holds a tool call's decoded JSON arguments.
type Arguments map[string]any

// ParseArguments decodes the raw argument JSON the model produced. An empty
// payload decodes to empty arguments; models omit the object for zero-arg
// tools.
func ParseArguments(raw string) (Arguments, error) {
	if raw == "" {
		return Arguments{}, nil
	}
	var args Arguments
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("parse tool arguments: %w", err)
	}
	return args, nil
}

// String returns the named argument as a string, or "" when absent or not a
// string.
func (a Arguments) String(key string) string {
	value, ok := a[key].(string)
	if !ok {
		return ""
	}
	return value
}

// Int returns the named argument as an int, falling back to def. JSON
// numbers decode as float64.
func (a Arguments) Int(key string, def int) int {
	switch value := a[key].(type) {
	case float64:
		return int(value)
	case int:
		return value
	default:
		return def
	}
}

// Bool returns the named argument as a bool, falling back to def.
func (a Arguments) Bool(key string, def bool) bool {
	value, ok := a[key].(bool)
	if !ok {
		return def
	}
	return value
}
