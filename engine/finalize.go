package engine

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Status classifies how a session ended.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusNoop    Status = "noop"
)

// Outcome is the structured result of every session, however it ended.
type Outcome struct {
	SessionID    string       `json:"session_id"`
	Profile      string       `json:"profile,omitempty"`
	Status       Status       `json:"status"`
	Artifacts    []string     `json:"artifacts"`
	InferredRoot string       `json:"inferred_root,omitempty"`
	Notes        string       `json:"notes"`
	StopReason   string       `json:"stop_reason,omitempty"`
	Answer       *Answer      `json:"answer,omitempty"`
	Commands     []string     `json:"commands,omitempty"`
	Errors       []string     `json:"errors,omitempty"`
	Rounds       int          `json:"rounds"`
	RawLog       []CallRecord `json:"raw_log,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
}

// finalizeInput is everything the finalizer reads.
type finalizeInput struct {
	sessionID     string
	profile       string
	answer        *Answer
	stopReason    string
	ledger        *Ledger
	rounds        int
	log           []CallRecord
	includeRawLog bool
	answerSchema  map[string]any
	startedAt     time.Time
}

// finalize folds the ledgers and the model's answer into an Outcome. It
// merges its summary into an answer object without overwriting values the
// model already supplied.
func finalize(in finalizeInput) Outcome {
	artifacts := sortedCopy(in.ledger.Artifacts())
	commands := in.ledger.Commands()
	errs := in.ledger.Errors()

	status := StatusNoop
	switch {
	case len(artifacts) > 0:
		status = StatusSuccess
	case len(errs) > 0:
		status = StatusError
	}
	root := inferRoot(artifacts)

	var parts []string
	if len(commands) > 0 {
		parts = append(parts, "Executed commands: "+strings.Join(commands, "; "))
	}
	if len(errs) > 0 {
		parts = append(parts, "Errors encountered: "+strings.Join(errs, " | "))
	}
	if in.stopReason != "" {
		parts = append(parts, "Stopped early: "+in.stopReason)
	}
	notes := strings.Join(parts, "\n")
	if notes == "" {
		notes = "No changes were applied."
		if status == StatusSuccess {
			notes = "Changes applied."
		}
	}

	out := Outcome{
		SessionID:    in.sessionID,
		Profile:      in.profile,
		Status:       status,
		Artifacts:    artifacts,
		InferredRoot: root,
		StopReason:   in.stopReason,
		Commands:     commands,
		Errors:       errs,
		Rounds:       in.rounds,
		StartedAt:    in.startedAt,
		FinishedAt:   time.Now(),
	}
	if in.includeRawLog {
		out.RawLog = in.log
	}

	if payload, ok := answerPayload(in.answer); ok {
		if problems := schemaProblems(in.answerSchema, payload); len(problems) > 0 {
			notes += "\nAnswer schema: " + strings.Join(problems, "; ")
		}
	}
	out.Notes = notes
	out.Answer = mergeAnswer(in.answer, status, artifacts, root, notes, out.RawLog)
	return out
}

func nonEmptyList(v any) bool {
	switch l := v.(type) {
	case []any:
		return len(l) > 0
	case []string:
		return len(l) > 0
	}
	return false
}

// mergeAnswer fills files_written, site_root and notes into the answer
// object where the model left them empty, synthesizing the object when
// there is none. The raw log is attached as mcp_logs when present.
func mergeAnswer(a *Answer, status Status, artifacts []string, root, notes string, log []CallRecord) *Answer {
	if a == nil {
		a = &Answer{}
	}
	if a.Object == nil {
		a.Object = map[string]any{"type": "answer", "answer": map[string]any{"status": string(status)}}
	}
	if inner, ok := a.Object["answer"].(map[string]any); ok {
		if v, present := inner["files_written"]; !present || (!nonEmptyList(v) && len(artifacts) > 0) {
			inner["files_written"] = artifacts
		}
		if s, _ := inner["site_root"].(string); strings.TrimSpace(s) == "" && root != "" {
			inner["site_root"] = root
		}
		if s, _ := inner["notes"].(string); strings.TrimSpace(s) == "" {
			inner["notes"] = notes
		}
	}
	if len(log) > 0 {
		a.Object["mcp_logs"] = log
	}
	if strings.TrimSpace(a.Text) == "" {
		if raw, err := json.Marshal(a.Object); err == nil {
			a.Text = string(raw)
		}
	}
	return a
}

// inferRoot returns the most common first path segment, "." for flat
// paths, or "" when there are no paths. Ties go to the segment seen first.
func inferRoot(paths []string) string {
	if len(paths) == 0 {
		return ""
	}
	counts := make(map[string]int)
	var order []string
	for _, p := range paths {
		top := "."
		if i := strings.IndexByte(p, '/'); i > 0 {
			top = p[:i]
		}
		if counts[top] == 0 {
			order = append(order, top)
		}
		counts[top]++
	}
	best, bestCount := ".", 0
	for _, dir := range order {
		if counts[dir] > bestCount {
			best, bestCount = dir, counts[dir]
		}
	}
	return best
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}
