package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/martinemde/conductor/capability"
)

// Signature is a named pattern over failure text.
type Signature struct {
	Name    string
	Pattern *regexp.Regexp
}

// TransientSignatures match connection failures worth retrying.
var TransientSignatures = []Signature{
	{Name: "tcp-not-listening", Pattern: regexp.MustCompile(`(?i)not listening in the tcp address`)},
	{Name: "connection-refused", Pattern: regexp.MustCompile(`(?i)connection refused|econnrefused`)},
	{Name: "connection-reset", Pattern: regexp.MustCompile(`(?i)connection reset by peer`)},
}

// MissingArchiveToolSignatures match a shell that has no zip binary.
var MissingArchiveToolSignatures = []Signature{
	{Name: "zip-not-found", Pattern: regexp.MustCompile(`(?i)\bzip\b[^\n]*not found`)},
	{Name: "command-not-found-zip", Pattern: regexp.MustCompile(`(?i)command not found: zip`)},
}

// Match returns the name of the first signature matching text.
func Match(sigs []Signature, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, s := range sigs {
		if s.Pattern.MatchString(text) {
			return s.Name, true
		}
	}
	return "", false
}

// Recovery routine names, used as call labels and once-per-session keys.
const (
	recoveryRetry           = "retry"
	recoveryInstallArchive  = "auto-install archive tool"
	recoveryRetryArchive    = "auto-retry archive"
	recoveryVerifyArchive   = "verify archive"
	recoveryFallbackArchive = "archive fallback"
	recoveryReadArchive     = "auto-read archive"
)

const installArchiveToolCommand = `if command -v apt-get >/dev/null 2>&1; then apt-get update && apt-get install -y zip; ` +
	`elif command -v apk >/dev/null 2>&1; then apk add --no-cache zip; ` +
	`elif command -v microdnf >/dev/null 2>&1; then microdnf install -y zip; ` +
	`elif command -v dnf >/dev/null 2>&1; then dnf install -y zip; ` +
	`elif command -v yum >/dev/null 2>&1; then yum install -y zip; ` +
	`elif command -v pacman >/dev/null 2>&1; then pacman -Sy --noconfirm zip; ` +
	`else echo "No supported package manager found" >&2; exit 127; fi`

var changeDirPrefix = regexp.MustCompile(`(?i)cd\s+([^&;]+?)\s*&&`)

func verifyArchiveCommand(archive string) string {
	return fmt.Sprintf("test -f %s && echo ARCHIVE_OK || echo ARCHIVE_MISSING", archive)
}

// archiveFallbackCommand builds the archive with Python's zipfile module,
// rooted at baseDir.
func archiveFallbackCommand(baseDir, archive string) string {
	script := strings.Join([]string{
		"import os, zipfile",
		"base = " + strconv.Quote(baseDir),
		"out = " + strconv.Quote(archive),
		"with zipfile.ZipFile(out, 'w', zipfile.ZIP_DEFLATED) as z:",
		"    for root, _, files in os.walk(base):",
		"        for f in files:",
		"            p = os.path.join(root, f)",
		"            z.write(p, os.path.relpath(p, base))",
		"print('OK')",
	}, "\n")
	return `set -e; if command -v python3 >/dev/null 2>&1; then py=python3; ` +
		`elif command -v python >/dev/null 2>&1; then py=python; ` +
		`else echo "No python found" >&2; exit 127; fi; $py - <<'PY'` + "\n" + script + "\nPY"
}

// archiveBaseDir returns the directory a packaging command changes into,
// or ".".
func archiveBaseDir(cmd string) string {
	m := changeDirPrefix.FindStringSubmatch(cmd)
	if m == nil {
		return "."
	}
	dir := strings.Trim(strings.TrimSpace(m[1]), `"'`)
	if dir == "" {
		return "."
	}
	return dir
}

func looksLikeArchiveCommand(cmd, archive string) bool {
	return strings.Contains(strings.ToLower(cmd), " zip ") && strings.Contains(cmd, archive)
}

func execArgsFor(cmd string, timeoutMs int) map[string]any {
	return map[string]any{"args": map[string]any{"args": cmd, "streamStderr": true, "timeout": timeoutMs}}
}

// callWithRetry invokes a capability, retrying transient connection
// failures with a linearly growing delay. Both returned errors and
// error-flagged results are retried.
func (r *run) callWithRetry(ctx context.Context, entry capability.Entry, args map[string]any) (*capability.Result, error) {
	for attempt := 1; ; attempt++ {
		res, err := r.s.provider.Invoke(ctx, entry.Locator, entry.Name, args)
		if err == nil && res == nil {
			res = &capability.Result{}
		}
		var text string
		switch {
		case err != nil:
			text = err.Error()
		case res.IsError:
			text = res.Text()
		}
		sig, transient := Match(TransientSignatures, text)
		if !transient || attempt >= r.cfg.RetryAttempts || ctx.Err() != nil {
			return res, err
		}
		delay := time.Duration(attempt) * r.cfg.RetryDelay
		r.logger.Warn().Str("tool", entry.Name).Str("signature", sig).Int("attempt", attempt).Dur("delay", delay).Msg("transient capability failure; retrying")
		r.emit(EventRecovery, map[string]any{"routine": recoveryRetry, "tool": entry.Name, "attempt": attempt, "signature": sig})
		if err := r.s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// invokeAuto runs a call issued by a recovery routine and records it like
// any other call. It reports whether the call produced a result.
func (r *run) invokeAuto(ctx context.Context, rs *roundState, entry capability.Entry, args map[string]any, label string) (*capability.Result, bool) {
	r.logger.Info().Str("tool", entry.Name).Str("routine", label).Msg("recovery call")
	r.emit(EventRecovery, map[string]any{"routine": label, "tool": entry.Name})
	kind := r.cfg.Vocabulary.Kind(entry.Name)
	res, err := r.callWithRetry(ctx, entry, args)
	if err != nil {
		msg := err.Error()
		r.ledger.RecordError(fmt.Sprintf("%s(%s): %s", entry.Name, label, msg))
		r.record(CallRecord{Round: rs.number, Tool: entry.Name, Locator: entry.Locator, Args: args, Error: msg, Note: label})
		rs.summarizeError(entry.Name, label, args, msg)
		return nil, false
	}
	r.record(CallRecord{Round: rs.number, Tool: entry.Name, Locator: entry.Locator, Args: args, Result: res, Note: label})
	rs.summarize(entry.Name, label, args, resultJSON(res, kind, r.cfg.ResultCharLimit))
	return res, true
}

// recoverArchiveTool handles a packaging command that failed because zip
// is missing: install it, retry the command, and if the archive still does
// not exist build it with Python. Runs at most once per session.
func (r *run) recoverArchiveTool(ctx context.Context, rs *roundState, cmd string, res *capability.Result) {
	archive := r.cfg.Vocabulary.ArchivePath
	if r.fired[recoveryInstallArchive] || !looksLikeArchiveCommand(cmd, archive) {
		return
	}
	if _, ok := Match(MissingArchiveToolSignatures, res.Text()); !ok {
		return
	}
	exec, ok := r.resolver.Entry(KindExec)
	if !ok || exec.Locator == "" {
		return
	}
	r.fired[recoveryInstallArchive] = true

	if _, ok := r.invokeAuto(ctx, rs, exec, execArgsFor(installArchiveToolCommand, 60000), recoveryInstallArchive); ok {
		rs.tally.Progress = true
	}
	if retry, ok := r.invokeAuto(ctx, rs, exec, execArgsFor(cmd, 60000), recoveryRetryArchive); ok {
		rs.tally.Progress = true
		if !retry.IsError {
			r.ledger.RecordCommand(cmd)
		}
	}

	check, ok := r.invokeAuto(ctx, rs, exec, execArgsFor(verifyArchiveCommand(archive), 15000), recoveryVerifyArchive)
	if !ok || !strings.Contains(check.Text(), "ARCHIVE_MISSING") {
		return
	}
	fallback := archiveFallbackCommand(archiveBaseDir(cmd), archive)
	if _, ok := r.invokeAuto(ctx, rs, exec, execArgsFor(fallback, 60000), recoveryFallbackArchive); ok {
		rs.tally.Progress = true
	}
}

// readArchiveAfterDuplicate reads the archive when the model re-issues an
// archive build that already ran, so it can move on to publishing. Runs at
// most once per session.
func (r *run) readArchiveAfterDuplicate(ctx context.Context, rs *roundState, cmd string) {
	archive := r.cfg.Vocabulary.ArchivePath
	if r.fired[recoveryReadArchive] || !looksLikeArchiveCommand(cmd, archive) {
		return
	}
	read, ok := r.resolver.Entry(KindRead)
	if !ok || read.Locator == "" {
		return
	}
	r.fired[recoveryReadArchive] = true
	if _, ok := r.invokeAuto(ctx, rs, read, map[string]any{"args": map[string]any{"path": archive}}, recoveryReadArchive); ok {
		rs.tally.Progress = true
	}
}
