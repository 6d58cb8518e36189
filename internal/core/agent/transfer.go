package agent

import (
	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Delegation Tools
// =============================================================================

// TransferToolPrefix prefixes every synthetic delegation tool name.
const TransferToolPrefix = "transfer_task_to_"

// Transfer tool parameter names. Clients key status lines off the tool
// name; the run engine reads these arguments to build the member's task.
const (
	ParamTaskDescription       = "task_description"
	ParamAdditionalInformation = "additional_information"
)

// SnakeCase converts an agent name to its tool-name form.
//
// The transformation rules are:
//   - Lowercase letters (a-z) and digits (0-9) are kept as-is
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces and hyphens are converted to underscores
//   - All other characters are removed
//
// Example:
//
//	SnakeCase("Web Search Agent")  // returns "web_search_agent"
//	SnakeCase("Finance AI Agent")  // returns "finance_ai_agent"
func SnakeCase(name string) string {
	out := ""
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			out += string(r)
		} else if r >= 'A' && r <= 'Z' {
			out += string(r + 32) // convert to lowercase
		} else if r == ' ' || r == '-' {
			out += "_"
		}
		// All other characters are dropped
	}
	return out
}

// TransferToolName returns the delegation tool name for a member.
func TransferToolName(memberName string) string {
	return TransferToolPrefix + SnakeCase(memberName)
}

// MemberForTool resolves a delegation tool name back to the team member,
// or (nil, false) when the name is not a delegation tool of this team.
func (t *Team) MemberForTool(toolName string) (*Agent, bool) {
	for _, m := range t.Members {
		if TransferToolName(m.Name) == toolName {
			return m, true
		}
	}
	return nil, false
}

// TransferTools builds the leader's delegation tool specs, one per member
// in member order. Invoke is left nil; the run engine intercepts these
// calls by name and executes the member's own loop instead.
func (t *Team) TransferTools() []toolkit.Tool {
	tools := make([]toolkit.Tool, 0, len(t.Members))
	for _, m := range t.Members {
		description := "Delegate a task to " + m.Name + "."
		if m.Role != "" {
			description += " " + m.Name + "'s role: " + m.Role
		}
		tools = append(tools, toolkit.Tool{
			Name:        TransferToolName(m.Name),
			Description: description,
			Parameters: toolkit.ObjectSchema(map[string]toolkit.Property{
				ParamTaskDescription: {
					Type:        "string",
					Description: "A clear and concise description of the task and the expected output.",
				},
				ParamAdditionalInformation: {
					Type:        "string",
					Description: "Additional context that helps the agent complete the task.",
				},
			}, ParamTaskDescription),
		})
	}
	return tools
}

// TaskFromArguments assembles the member's task text from a delegation
// call's arguments.
func TaskFromArguments(args toolkit.Arguments) string {
	task := args.String(ParamTaskDescription)
	if extra := args.String(ParamAdditionalInformation); extra != "" {
		if task != "" {
			task += "\n\n"
		}
		task += "Additional information: " + extra
	}
	return task
}
