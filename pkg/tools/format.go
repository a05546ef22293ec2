package tools

import (
	"slices"
	"strings"
)

// FormatForLLM renders a tool as a plain-text block for the system prompt.
// Arguments are listed in name order.
func FormatForLLM(t Tool) string {
	var b strings.Builder
	b.WriteString("Tool: " + t.Name + "\n")
	if t.Title != "" {
		b.WriteString("User-readable title: " + t.Title + "\n")
	}
	b.WriteString("Description: " + t.Description + "\n")
	b.WriteString("Arguments:\n")

	names := make([]string, 0, len(t.InputSchema.Properties))
	for name := range t.InputSchema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		desc := t.InputSchema.Properties[name].Description
		if desc == "" {
			desc = "No description"
		}
		line := "- " + name + ": " + desc
		if slices.Contains(t.InputSchema.Required, name) {
			line += " (required)"
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n")
	return b.String()
}

// FormatCatalog renders every tool, separated by blank lines.
func FormatCatalog(tools []Tool) string {
	blocks := make([]string, len(tools))
	for i, t := range tools {
		blocks[i] = FormatForLLM(t)
	}
	return strings.Join(blocks, "\n")
}
