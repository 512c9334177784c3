package engine

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/martinemde/conductor/capability"
)

// replyProtocol tells the model the only reply shapes the parser accepts.
const replyProtocol = `Reply protocol:
Respond with exactly one JSON object and nothing else.
- To invoke a capability: {"type":"tool_call","tool":"<name>","arguments":{...}}
- To invoke several in order: {"tool_calls":[{"name":"<name>","arguments":{...}}]}
- When the work is finished: {"type":"answer","answer":<final answer>}
Keep each reply small enough to be sent complete; split large files across rounds rather than risk a truncated reply.`

// replySchema constrains structured replies to the reply protocol.
var replySchema = map[string]any{
	"type":     "object",
	"required": []any{"type"},
	"properties": map[string]any{
		"type": map[string]any{"type": "string", "enum": []any{"tool_call", "answer"}},
	},
}

// BuildSystemPrompt assembles the profile instructions, an environment
// block, the capability listing and the reply protocol.
func BuildSystemPrompt(instructions string, entries []capability.Entry, answerSchema map[string]any, now time.Time) string {
	var b strings.Builder
	if s := strings.TrimSpace(instructions); s != "" {
		b.WriteString(s)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "<environment>\nToday's date: %s\n</environment>\n\n", now.Format("2006-01-02"))
	b.WriteString(describeCapabilities(entries))
	b.WriteString("\n")
	b.WriteString(replyProtocol)
	if answerSchema != nil {
		if raw, err := json.MarshalIndent(answerSchema, "", "  "); err == nil {
			b.WriteString("\n\nThe value of \"answer\" must conform to this JSON Schema:\n")
			b.Write(raw)
		}
	}
	return b.String()
}

// describeCapabilities lists each capability with its description and
// argument schema.
func describeCapabilities(entries []capability.Entry) string {
	if len(entries) == 0 {
		return "Available capabilities: none\n"
	}
	var b strings.Builder
	b.WriteString("Available capabilities:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", e.Name)
		if d := strings.TrimSpace(e.Description); d != "" {
			fmt.Fprintf(&b, "  Description: %s\n", d)
		}
		if e.ArgumentSchema != nil {
			if raw, err := json.Marshal(e.ArgumentSchema); err == nil {
				fmt.Fprintf(&b, "  Param JSON Schema: %s\n", raw)
			}
		}
	}
	return b.String()
}
