// Package toolkit defines the tool abstraction exposed to the language model.
//
// A Toolkit is a named group of tools. Each Tool carries a JSON-Schema-shaped
// parameter spec (sent to the model) and an invoke function (run when the
// model calls the tool). Tool backends register their functions behind
// boolean enable flags; disabled capabilities never reach the model.
package toolkit

import (
	"context"
	"fmt"
)

// =============================================================================
// Tool
// =============================================================================

// InvokeFunc executes a tool call. Failures are returned as errors; the
// caller decides whether to surface them to the model as result text.
type InvokeFunc func(ctx context.Context, args Arguments) (string, error)

// Tool is one callable function exposed to the model.
type Tool struct {
	Name        string
	Description string
	Parameters  Schema
	Invoke      InvokeFunc
}

// =============================================================================
// Toolkit
// =============================================================================

// Toolkit is an ordered, named collection of tools.
type Toolkit struct {
	name  string
	tools []Tool
}

// New creates an empty toolkit.
func New(name string) *Toolkit {
	return &Toolkit{name: name}
}

// Name returns the toolkit's name.
func (k *Toolkit) Name() string {
	return k.name
}

// Register adds a tool. Registration order is preserved; duplicate names
// within a toolkit are rejected.
func (k *Toolkit) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("toolkit %s: tool name is required", k.name)
	}
	if tool.Invoke == nil {
		return fmt.Errorf("toolkit %s: tool %s has no invoke function", k.name, tool.Name)
	}
	for _, existing := range k.tools {
		if existing.Name == tool.Name {
			return fmt.Errorf("toolkit %s: tool %s already registered", k.name, tool.Name)
		}
	}
	k.tools = append(k.tools, tool)
	return nil
}

// MustRegister is Register for static tool sets assembled at startup.
func (k *Toolkit) MustRegister(tool Tool) {
	if err := k.Register(tool); err != nil {
		panic(err)
	}
}

// Tools returns the registered tools in registration order.
func (k *Toolkit) Tools() []Tool {
	out := make([]Tool, len(k.tools))
	copy(out, k.tools)
	return out
}

// Len returns the number of registered tools.
func (k *Toolkit) Len() int {
	return len(k.tools)
}

// =============================================================================
// Lookup
// =============================================================================

// Find locates a tool by name across several toolkits. The first match wins.
func Find(kits []*Toolkit, name string) (Tool, bool) {
	for _, kit := range kits {
		if kit == nil {
			continue
		}
		for _, tool := range kit.tools {
			if tool.Name == name {
				return tool, true
			}
		}
	}
	return Tool{}, false
}

// Flatten returns all tools of the given toolkits in order.
func Flatten(kits []*Toolkit) []Tool {
	var out []Tool
	for _, kit := range kits {
		if kit == nil {
			continue
		}
		out = append(out, kit.tools...)
	}
	return out
}
