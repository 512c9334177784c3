package engine

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of an oversized result is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

var kindTruncationModes = map[Kind]TruncationMode{
	KindExec: TruncateHeadTail,
	KindList: TruncateTail,
}

// Line limits applied after character truncation.
var kindLineLimits = map[Kind]int{
	KindExec: 256,
	KindList: 500,
}

// TruncateOutput cuts output to maxChars, leaving a marker that says how
// much was dropped.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if maxChars <= 0 || len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars
	if mode == TruncateTail {
		return fmt.Sprintf("[output truncated: first %d characters removed]\n", removed) +
			output[len(output)-maxChars:]
	}
	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n[output truncated: %d characters removed from the middle; re-run with narrower arguments to see them]\n", removed) +
		output[len(output)-half:]
}

// TruncateLines keeps the first and last lines of output.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if maxLines <= 0 || len(lines) <= maxLines {
		return output
	}
	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail
	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// truncateResult bounds a result rendering for the digest prompt. Only
// exec and list output is cut; every other kind passes through whole.
func truncateResult(output string, kind Kind, maxChars int) string {
	mode, ok := kindTruncationModes[kind]
	if !ok {
		return output
	}
	out := TruncateOutput(output, maxChars, mode)
	if n, ok := kindLineLimits[kind]; ok {
		out = TruncateLines(out, n)
	}
	return out
}
