// Package trace records and renders the chain-of-thought of one orchestrator call.
package trace

import (
	"strings"
)

// Kind tags a trace entry.
type Kind int

const (
	KindToolInvocation Kind = iota + 1
	KindFinalAnswer
)

// Entry is either a tool invocation (ToolName, Input) or the final answer (Text).
type Entry struct {
	Kind     Kind
	ToolName string
	Input    string
	Text     string
}

// ToolInvocation builds a tool invocation entry.
func ToolInvocation(toolName, input string) Entry {
	return Entry{Kind: KindToolInvocation, ToolName: toolName, Input: input}
}

// FinalAnswer builds a final answer entry.
func FinalAnswer(text string) Entry {
	return Entry{Kind: KindFinalAnswer, Text: text}
}

// Format renders entries as Markdown, one block per entry, in input order.
func Format(entries []Entry) string {
	blocks := make([]string, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case KindToolInvocation:
			blocks = append(blocks, "- **Tool:** "+e.ToolName+"\n  **Input:** "+e.Input)
		case KindFinalAnswer:
			blocks = append(blocks, "**Final Answer:** "+e.Text)
		}
	}
	return strings.Join(blocks, "\n\n")
}

// ToolNames returns the distinct tool names in first-use order.
func ToolNames(entries []Entry) []string {
	seen := make(map[string]bool, len(entries))
	var names []string
	for _, e := range entries {
		if e.Kind != KindToolInvocation || seen[e.ToolName] {
			continue
		}
		seen[e.ToolName] = true
		names = append(names, e.ToolName)
	}
	return names
}

// Report joins the answer, the chain-of-thought section and the tools used.
func Report(answer string, entries []Entry) string {
	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\n---\n\n### Chain of Thought\n\n")
	b.WriteString(Format(entries))
	b.WriteString("\n\n**Tools used:** ")
	if names := ToolNames(entries); len(names) > 0 {
		b.WriteString(strings.Join(names, ", "))
	} else {
		b.WriteString("none")
	}
	return b.String()
}
