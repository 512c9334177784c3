// Package runlog keeps an audit trail of finished sessions and the calls
// they made. It is write-once history; nothing in it is used to resume a
// session.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/martinemde/conductor/engine"
)

// ErrNotFound is returned by Get for an unknown session ID.
var ErrNotFound = errors.New("runlog: session not found")

// Session is one recorded session.
type Session struct {
	ID           string    `json:"id"`
	Profile      string    `json:"profile"`
	Goal         string    `json:"goal"`
	Status       string    `json:"status"`
	StopReason   string    `json:"stop_reason,omitempty"`
	Artifacts    []string  `json:"artifacts"`
	InferredRoot string    `json:"inferred_root,omitempty"`
	Notes        string    `json:"notes"`
	Answer       string    `json:"answer,omitempty"`
	Rounds       int       `json:"rounds"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Call is one recorded capability call.
type Call struct {
	Seq     int             `json:"seq"`
	Round   int             `json:"round"`
	Tool    string          `json:"tool"`
	Locator string          `json:"locator,omitempty"`
	Args    json.RawMessage `json:"args"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Note    string          `json:"note,omitempty"`
	Skipped bool            `json:"skipped,omitempty"`
}

// Store persists sessions in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates the run log at path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores an outcome and its raw call log in one transaction.
func (s *Store) Record(ctx context.Context, goal string, out engine.Outcome) error {
	artifacts, err := json.Marshal(nonNil(out.Artifacts))
	if err != nil {
		return fmt.Errorf("encode artifacts: %w", err)
	}
	var answer string
	if out.Answer != nil {
		answer = out.Answer.Text
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sessions(id, profile, goal, status, stop_reason, artifacts, inferred_root, notes, answer, rounds, started_at, finished_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.SessionID, out.Profile, goal, string(out.Status), out.StopReason, string(artifacts),
		out.InferredRoot, out.Notes, answer, out.Rounds, formatTime(out.StartedAt), formatTime(out.FinishedAt)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert session: %w", err)
	}
	for i, rec := range out.RawLog {
		if err := insertCall(ctx, tx, out.SessionID, i+1, rec); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

func insertCall(ctx context.Context, tx *sql.Tx, sessionID string, seq int, rec engine.CallRecord) error {
	args, err := json.Marshal(rec.Args)
	if err != nil {
		return fmt.Errorf("encode args of call %d: %w", seq, err)
	}
	var result []byte
	if rec.Result != nil {
		if result, err = json.Marshal(rec.Result); err != nil {
			return fmt.Errorf("encode result of call %d: %w", seq, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO calls(session_id, seq, round, tool, locator, args, result, error, note, skipped)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, seq, rec.Round, rec.Tool, rec.Locator, string(args), string(result), rec.Error, rec.Note, rec.Skipped); err != nil {
		return fmt.Errorf("insert call %d: %w", seq, err)
	}
	return nil
}

// List returns the most recent sessions, newest first. A limit of zero or
// less returns all of them.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	q := `SELECT id, profile, goal, status, stop_reason, artifacts, inferred_root, notes, answer, rounds, started_at, finished_at
		FROM sessions ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return out, nil
}

// Get returns one session and its calls in order.
func (s *Store) Get(ctx context.Context, id string) (Session, []Call, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, profile, goal, status, stop_reason, artifacts, inferred_root, notes, answer, rounds, started_at, finished_at
		FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Session{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT seq, round, tool, locator, args, result, error, note, skipped
		FROM calls WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return Session{}, nil, fmt.Errorf("get calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		var (
			c            Call
			args, result string
		)
		if err := rows.Scan(&c.Seq, &c.Round, &c.Tool, &c.Locator, &args, &result, &c.Error, &c.Note, &c.Skipped); err != nil {
			return Session{}, nil, fmt.Errorf("scan call: %w", err)
		}
		c.Args = json.RawMessage(args)
		if result != "" {
			c.Result = json.RawMessage(result)
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return Session{}, nil, fmt.Errorf("get calls: %w", err)
	}
	return sess, calls, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (Session, error) {
	var (
		sess              Session
		artifacts         string
		started, finished string
	)
	if err := row.Scan(&sess.ID, &sess.Profile, &sess.Goal, &sess.Status, &sess.StopReason, &artifacts,
		&sess.InferredRoot, &sess.Notes, &sess.Answer, &sess.Rounds, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &sess.Artifacts); err != nil {
		return Session{}, fmt.Errorf("decode artifacts of %s: %w", sess.ID, err)
	}
	sess.StartedAt = parseTime(started)
	sess.FinishedAt = parseTime(finished)
	return sess, nil
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
