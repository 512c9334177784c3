package engine

import (
	"fmt"
	"strings"

	"github.com/martinemde/conductor/capability"
)

// CallRecord is one entry of the raw call log.
type CallRecord struct {
	Round   int                `json:"round"`
	Tool    string             `json:"tool"`
	Locator string             `json:"locator,omitempty"`
	Args    map[string]any     `json:"args"`
	Result  *capability.Result `json:"result,omitempty"`
	Error   string             `json:"error,omitempty"`
	// Note explains a skip, or names the recovery routine that issued the
	// call.
	Note    string `json:"note,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// roundState is rebuilt every round.
type roundState struct {
	number          int
	summaries       []string
	skippedCommands []string
	tally           RoundTally
}

func newRoundState(n int) *roundState { return &roundState{number: n} }

// summarize appends a transcript entry for an executed call.
func (r *roundState) summarize(tool, label string, args map[string]any, result string) {
	r.summaries = append(r.summaries, fmt.Sprintf("Tool: %s%s\nArgs: %s\nResult: %s", tool, suffix(label), prettyJSON(args), result))
}

// summarizeError appends a transcript entry for a call that never returned
// a result.
func (r *roundState) summarizeError(tool, label string, args map[string]any, msg string) {
	r.summaries = append(r.summaries, fmt.Sprintf("Tool: %s%s\nArgs: %s\nError: %s", tool, suffix(label), prettyJSON(args), msg))
}

// summarizeSkip appends a transcript entry for a call the guard refused.
func (r *roundState) summarizeSkip(tool string, args map[string]any, note map[string]any) {
	r.summaries = append(r.summaries, fmt.Sprintf("Tool: %s\nArgs: %s\nResult: %s", tool, prettyJSON(args), prettyJSON(note)))
}

func (r *roundState) skipCommand(cmd string) {
	for _, c := range r.skippedCommands {
		if c == cmd {
			return
		}
	}
	r.skippedCommands = append(r.skippedCommands, cmd)
}

func suffix(label string) string {
	if label == "" {
		return ""
	}
	return " (" + label + ")"
}

// resultJSON renders a result for the transcript. Exec and list output is
// bounded to limit characters; reads, such as the packaged archive, are
// replayed verbatim.
func resultJSON(res *capability.Result, kind Kind, limit int) string {
	if res == nil {
		return "null"
	}
	rendered := prettyJSON(res)
	if _, bounded := kindTruncationModes[kind]; !bounded || len(rendered) <= limit {
		return rendered
	}
	text := truncateResult(res.Text(), kind, limit)
	return prettyJSON(map[string]any{"isError": res.IsError, "text": strings.TrimSpace(text)})
}
