package tools

import (
	"fmt"

	"github.com/watson-civil-chatbot/server/internal/agent/model"
)

// DefaultGateRules: charts are only drawn once real data has been fetched.
var DefaultGateRules = []model.GateRule{
	{Tool: ToolGraph, Requires: ToolSQL},
}

// GateClosedMessage is the exact text returned when rule blocks a run.
func GateClosedMessage(rule model.GateRule) string {
	return fmt.Sprintf("The %s tool is unavailable until the %s tool has run successfully in this session.", rule.Tool, rule.Requires)
}

// gateOpen reports whether rule's prerequisite has succeeded in s. A nil
// session behaves like a fresh one.
func gateOpen(s *model.Session, rule model.GateRule) bool {
	return s != nil && s.Succeeded(rule.Requires)
}
