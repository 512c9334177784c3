package runlog

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/conductor/capability"
	"github.com/martinemde/conductor/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func outcome(id string, started time.Time) engine.Outcome {
	return engine.Outcome{
		SessionID:    id,
		Profile:      "coder",
		Status:       engine.StatusSuccess,
		Artifacts:    []string{"site/index.html"},
		InferredRoot: "site",
		Notes:        "Changes applied.",
		Answer:       &engine.Answer{Text: "done"},
		Rounds:       2,
		StartedAt:    started,
		FinishedAt:   started.Add(time.Minute),
		RawLog: []engine.CallRecord{
			{
				Round:   1,
				Tool:    "container_file_write",
				Locator: "workspace",
				Args:    map[string]any{"args": map[string]any{"path": "site/index.html", "text": "<h1>hi</h1>"}},
				Result:  capability.TextResult("ok", false),
			},
			{
				Round:   2,
				Tool:    "container_exec",
				Args:    map[string]any{"args": map[string]any{"args": "cd site && zip -r /tmp/site.zip ."}},
				Note:    engine.NoteCoverageBlocked,
				Skipped: true,
			},
		},
	}
}

func TestRecordAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "build the site", outcome("s-1", started)))

	sess, calls, err := s.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "coder", sess.Profile)
	assert.Equal(t, "build the site", sess.Goal)
	assert.Equal(t, "success", sess.Status)
	assert.Equal(t, []string{"site/index.html"}, sess.Artifacts)
	assert.Equal(t, "site", sess.InferredRoot)
	assert.Equal(t, "done", sess.Answer)
	assert.Equal(t, 2, sess.Rounds)
	assert.True(t, started.Equal(sess.StartedAt))
	assert.True(t, started.Add(time.Minute).Equal(sess.FinishedAt))

	require.Len(t, calls, 2)
	assert.Equal(t, 1, calls[0].Seq)
	assert.Equal(t, "container_file_write", calls[0].Tool)
	assert.Equal(t, "workspace", calls[0].Locator)
	var args map[string]any
	require.NoError(t, json.Unmarshal(calls[0].Args, &args))
	assert.Equal(t, "site/index.html", args["args"].(map[string]any)["path"])
	assert.NotEmpty(t, calls[0].Result)
	assert.False(t, calls[0].Skipped)

	assert.Equal(t, 2, calls[1].Round)
	assert.True(t, calls[1].Skipped)
	assert.Equal(t, engine.NoteCoverageBlocked, calls[1].Note)
	assert.Empty(t, calls[1].Result)
}

func TestGetUnknownSession(t *testing.T) {
	s := openTestStore(t)
	_, _, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, "a", outcome("old", base)))
	require.NoError(t, s.Record(ctx, "b", outcome("new", base.Add(500*time.Millisecond))))
	noop := engine.Outcome{SessionID: "empty", Status: engine.StatusNoop, StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour)}
	require.NoError(t, s.Record(ctx, "c", noop))

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"empty", "new", "old"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, []string{}, all[0].Artifacts)

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "empty", limited[0].ID)
}

func TestRecordRejectsDuplicateSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	out := outcome("dup", time.Now())

	require.NoError(t, s.Record(ctx, "goal", out))
	require.Error(t, s.Record(ctx, "goal", out))

	_, calls, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Len(t, calls, 2)
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), "goal", outcome("kept", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kept", list[0].ID)
}
