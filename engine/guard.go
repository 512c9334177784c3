package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// WrittenArtifact is the write history of one normalized path.
type WrittenArtifact struct {
	Path        string `json:"path"`
	LastContent string `json:"-"`
	WriteCount  int    `json:"write_count"`
}

// Ledger is the session-wide record of what has been done. It only grows
// during a session and is never shared between sessions.
type Ledger struct {
	calls     map[string]int
	artifacts map[string]*WrittenArtifact
	created   []string
	commands  []string
	ran       map[string]bool
	errors    []string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		calls:     make(map[string]int),
		artifacts: make(map[string]*WrittenArtifact),
		ran:       make(map[string]bool),
	}
}

// CallCount returns how many times a call with this fingerprint was
// recorded.
func (l *Ledger) CallCount(c Call) int { return l.calls[c.Fingerprint()] }

// RecordCall counts one occurrence of c.
func (l *Ledger) RecordCall(c Call) { l.calls[c.Fingerprint()]++ }

// Artifact returns the write history of a normalized path.
func (l *Ledger) Artifact(path string) (WrittenArtifact, bool) {
	a, ok := l.artifacts[path]
	if !ok {
		return WrittenArtifact{}, false
	}
	return *a, true
}

// LastContent returns the content last written to path.
func (l *Ledger) LastContent(path string) (string, bool) {
	a, ok := l.artifacts[normalizePath(path)]
	if !ok {
		return "", false
	}
	return a.LastContent, true
}

// RecordWrite notes a successful write of content to path.
func (l *Ledger) RecordWrite(path, content string) {
	path = normalizePath(path)
	if path == "" {
		return
	}
	a, ok := l.artifacts[path]
	if !ok {
		a = &WrittenArtifact{Path: path}
		l.artifacts[path] = a
		l.created = append(l.created, path)
	}
	a.LastContent = content
	a.WriteCount++
}

// Artifacts returns written paths in creation order.
func (l *Ledger) Artifacts() []string {
	out := make([]string, len(l.created))
	copy(out, l.created)
	return out
}

// Written reports whether path has been written at least once.
func (l *Ledger) Written(path string) bool {
	_, ok := l.artifacts[normalizePath(path)]
	return ok
}

// CommandRan reports whether cmd already ran successfully.
func (l *Ledger) CommandRan(cmd string) bool { return l.ran[cmd] }

// RecordCommand notes a successful command. It reports false when the
// command had already been recorded.
func (l *Ledger) RecordCommand(cmd string) bool {
	if cmd == "" || l.ran[cmd] {
		return false
	}
	l.ran[cmd] = true
	l.commands = append(l.commands, cmd)
	return true
}

// Commands returns distinct successful commands in execution order.
func (l *Ledger) Commands() []string {
	out := make([]string, len(l.commands))
	copy(out, l.commands)
	return out
}

// RecordError appends a failure description.
func (l *Ledger) RecordError(msg string) { l.errors = append(l.errors, msg) }

// Errors returns recorded failures in order.
func (l *Ledger) Errors() []string {
	out := make([]string, len(l.errors))
	copy(out, l.errors)
	return out
}

var duplicateSlashes = regexp.MustCompile(`/{2,}`)

// normalizePath trims whitespace, strips leading "./" and collapses
// repeated slashes.
func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	for strings.HasPrefix(p, "./") {
		p = strings.TrimLeft(strings.TrimPrefix(p, "."), "/")
	}
	return duplicateSlashes.ReplaceAllString(p, "/")
}

// Skip notes attached to calls the guard refused to run.
const (
	NoteWriteLimit       = "write limit exceeded"
	NoteDuplicateContent = "duplicate content"
	NoteDuplicateCommand = "duplicate command"
	NoteDuplicateInit    = "duplicate initialize ignored"
	NoteCoverageBlocked  = "packaging/deploy blocked: planned files incomplete"
)

// Guard applies the repetition rules against a Ledger.
type Guard struct {
	ledger *Ledger
	cfg    Config
}

// NewGuard binds a guard to a ledger.
func NewGuard(ledger *Ledger, cfg Config) *Guard {
	return &Guard{ledger: ledger, cfg: cfg.withDefaults()}
}

// RepeatViolation returns the first call that has already run
// RepeatTolerance times and is not duplicate-tolerant.
func (g *Guard) RepeatViolation(calls []Call) (Call, bool) {
	for _, c := range calls {
		if g.cfg.Vocabulary.DuplicateTolerant(c.Name) {
			continue
		}
		if g.ledger.CallCount(c) >= g.cfg.RepeatTolerance {
			return c, true
		}
	}
	return Call{}, false
}

// CheckWrite decides whether a write of text to path should be skipped.
// It returns the skip note, or "" when the write may run.
func (g *Guard) CheckWrite(path, text string) string {
	a, ok := g.ledger.Artifact(normalizePath(path))
	if !ok {
		return ""
	}
	if a.WriteCount >= g.cfg.WriteCap {
		return fmt.Sprintf("%s (%d)", NoteWriteLimit, g.cfg.WriteCap)
	}
	if a.LastContent == text {
		return NoteDuplicateContent
	}
	return ""
}

// CheckCommand returns a skip note when cmd already ran successfully.
func (g *Guard) CheckCommand(cmd string) string {
	if g.ledger.CommandRan(cmd) {
		return NoteDuplicateCommand
	}
	return ""
}

// RoundTally counts what happened in one round for the stall check.
type RoundTally struct {
	Progress          bool
	DuplicateWrites   int
	DuplicateCommands int
}

// Stalled reports whether the session should stop for lack of progress,
// given the tally of the round just finished and the number of
// consecutive rounds without progress including it.
func (g *Guard) Stalled(t RoundTally, roundsWithoutProgress int) bool {
	if t.Progress {
		return false
	}
	return roundsWithoutProgress >= g.cfg.NoProgressRounds ||
		t.DuplicateWrites >= g.cfg.DuplicateWriteAbort ||
		t.DuplicateCommands >= g.cfg.DuplicateCommandAbort
}
