package engine

import (
	"fmt"
	"strings"
)

// Directives sent instead of a digest when a reply cannot be acted on.
const (
	resendDirective = "Your previous reply contained an incomplete JSON object. Resend the SAME content as a single, fully-formed JSON object with matching braces."
	closingLine     = "If more actions are needed, respond with a tool_call JSON. Otherwise, respond with an answer JSON."
)

func missingFieldDirective(field string) string {
	return fmt.Sprintf("Your previous reply did not include the required %q. Produce it with the available capabilities and include it in your final JSON answer. Do not answer until it is present and non-empty.", field)
}

// digest rebuilds the next round's prompt from the ledgers: the goal, the
// cumulative progress, status reminders and this round's call summaries.
func (r *run) digest(rs *roundState) string {
	sections := []string{
		"Original requirement:\n" + r.goal,
		r.progressSection(),
		"Status reminders:\n- " + strings.Join(r.reminders(rs), "\n- "),
		"Tool executions this round:",
	}
	if len(rs.summaries) > 0 {
		sections = append(sections, strings.Join(rs.summaries, "\n\n"))
	}
	sections = append(sections, closingLine)
	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func (r *run) progressSection() string {
	var parts []string
	if files := r.ledger.Artifacts(); len(files) > 0 {
		parts = append(parts, "Files created so far:\n- "+strings.Join(files, "\n- "))
	}
	if cmds := r.ledger.Commands(); len(cmds) > 0 {
		parts = append(parts, "Commands run so far:\n- "+strings.Join(cmds, "\n- "))
	}
	if len(parts) == 0 {
		return "Progress so far:\n- (no files or commands yet)"
	}
	return "Progress so far:\n" + strings.Join(parts, "\n\n")
}

func (r *run) reminders(rs *roundState) []string {
	var out []string
	if files := r.ledger.Artifacts(); len(files) > 0 {
		out = append(out, fmt.Sprintf("Files already written (rewrite at most %d times; decide per file when it is done): %s",
			r.cfg.WriteCap, strings.Join(sortedCopy(files), ", ")))
	}
	if r.coverage.Active() {
		c := r.coverage.Coverage()
		missing := "none"
		if len(c.Missing) > 0 {
			missing = strings.Join(c.Missing, ", ")
		}
		out = append(out, fmt.Sprintf("Coverage: %d/%d. Missing: %s. Packaging and publishing only after all are complete.", c.Done, c.Total, missing))
	}
	if r.cfg.RequiredAnswerField != "" {
		out = append(out, fmt.Sprintf("The final answer must include a non-empty %q.", r.cfg.RequiredAnswerField))
	}
	if len(rs.skippedCommands) > 0 {
		out = append(out, fmt.Sprintf("Duplicate commands were skipped: %s. Do not rerun identical commands without a specific reason.", strings.Join(rs.skippedCommands, ", ")))
	}
	if !rs.tally.Progress {
		out = append(out, "No new actions were applied this round. Move on to the remaining steps or give the final answer without repeating earlier actions.")
	}
	if rs.tally.DuplicateWrites > 0 {
		out = append(out, fmt.Sprintf("Duplicate file writes skipped this round: %d. Move to the next file once one is complete.", rs.tally.DuplicateWrites))
	}
	if rs.tally.DuplicateCommands > 0 {
		out = append(out, fmt.Sprintf("Duplicate commands skipped this round: %d. Proceed to the next step.", rs.tally.DuplicateCommands))
	}
	if len(out) == 0 {
		out = append(out, "Continue executing the remaining required steps.")
	}
	return out
}
