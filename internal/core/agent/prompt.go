package agent

import (
	"strings"
)

// =============================================================================
// System Prompt Rendering
// =============================================================================

// MarkdownInstruction is appended when an agent answers in markdown.
const MarkdownInstruction = "Use markdown to format your answers."

// SystemPrompt renders a member agent's system message: role, description,
// instructions and tool guidance. Deterministic for a given agent.
func SystemPrompt(a *Agent) string {
	var b strings.Builder

	switch {
	case a.Role != "" && a.Name != "":
		b.WriteString("You are " + a.Name + ". " + a.Role + "\n")
	case a.Role != "":
		b.WriteString(a.Role + "\n")
	default:
		b.WriteString("You are " + a.Name + ", a helpful assistant.\n")
	}
	if a.Description != "" {
		b.WriteString("\n" + a.Description + "\n")
	}

	writeInstructions(&b, instructionsFor(a.Instructions, a.Markdown))

	if len(a.Tools()) > 0 {
		b.WriteString("\nUse your tools to fetch current data before answering. Never invent figures a tool can provide.\n")
	}
	return b.String()
}

// LeaderSystemPrompt renders the team leader's system message, including the
// member roster and delegation rules.
func LeaderSystemPrompt(t *Team) string {
	var b strings.Builder

	name := t.Name
	if name == "" {
		name = "a team of AI agents"
	} else {
		name = "the " + name + " team"
	}
	b.WriteString("You are the leader of " + name + ". Coordinate your team to answer the user's query.\n")

	b.WriteString("\n## Team\nYou can delegate tasks to these agents:\n")
	for _, m := range t.Members {
		line := "- " + m.Name
		if m.Role != "" {
			line += ": " + m.Role
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\nTo delegate, call the agent's transfer function with a clear " +
		ParamTaskDescription + ". Combine the results into one answer for the user; do not mention the delegation.\n")

	writeInstructions(&b, instructionsFor(t.Instructions, t.Markdown))
	return b.String()
}

func instructionsFor(instructions []string, markdown bool) []string {
	if !markdown {
		return instructions
	}
	out := make([]string, 0, len(instructions)+1)
	out = append(out, instructions...)
	return append(out, MarkdownInstruction)
}

func writeInstructions(b *strings.Builder, instructions []string) {
	if len(instructions) == 0 {
		return
	}
	b.WriteString("\n## Instructions\n")
	for _, instruction := range instructions {
		b.WriteString("- " + instruction + "\n")
	}
}
