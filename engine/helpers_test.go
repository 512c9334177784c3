package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/martinemde/conductor/capability"
)

// scriptedModel replays canned replies and records every prompt.
type scriptedModel struct {
	mu      sync.Mutex
	replies []Reply
	prompts []string
	opts    []QueryOptions
}

func textModel(texts ...string) *scriptedModel {
	m := &scriptedModel{}
	for _, t := range texts {
		m.replies = append(m.replies, Reply{Text: t})
	}
	return m
}

func (m *scriptedModel) Query(_ context.Context, prompt string, opts QueryOptions) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.opts = append(m.opts, opts)
	if len(m.replies) == 0 {
		return Reply{Text: `{"type":"answer","answer":"script exhausted"}`}, nil
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type invocation struct {
	Locator string
	Name    string
	Args    map[string]any
}

// fakeProvider is an in-memory capability provider.
type fakeProvider struct {
	mu        sync.Mutex
	entries   []capability.Entry
	handle    func(name string, args map[string]any) (*capability.Result, error)
	calls     []invocation
	refreshes int
	listErr   error
}

func newFakeProvider(names ...string) *fakeProvider {
	p := &fakeProvider{}
	for _, n := range names {
		p.entries = append(p.entries, capability.Entry{Name: n, Description: n, Locator: "box"})
	}
	return p
}

func (p *fakeProvider) ListCapabilities(context.Context) ([]capability.Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listErr != nil {
		return nil, p.listErr
	}
	out := make([]capability.Entry, len(p.entries))
	copy(out, p.entries)
	return out, nil
}

func (p *fakeProvider) Invoke(_ context.Context, locator, name string, args map[string]any) (*capability.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, invocation{Locator: locator, Name: name, Args: args})
	handle := p.handle
	p.mu.Unlock()
	if handle == nil {
		return capability.TextResult("ok", false), nil
	}
	return handle(name, args)
}

func (p *fakeProvider) Refresh(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes++
	return nil
}

func (p *fakeProvider) invocations(name string) []invocation {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []invocation
	for _, c := range p.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

var containerNames = []string{
	"container_initialize",
	"container_exec",
	"container_file_read",
	"container_file_write",
}

func testProfile() Profile {
	return Profile{Name: "test", Instructions: "Do the work."}
}

func newTestSession(t *testing.T, profile Profile, model Model, provider capability.Provider, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithLogger(zerolog.Nop())}, opts...)
	s := NewSession(profile, model, provider, opts...)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(s.Close)
	return s
}

func toolCall(t *testing.T, tool string, args map[string]any) string {
	t.Helper()
	b, err := json.Marshal(map[string]any{"type": "tool_call", "tool": tool, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func toolCalls(t *testing.T, calls ...Call) string {
	t.Helper()
	list := make([]any, len(calls))
	for i, c := range calls {
		list[i] = map[string]any{"name": c.Name, "arguments": c.Args}
	}
	b, err := json.Marshal(map[string]any{"tool_calls": list})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func skipNotes(out Outcome) []string {
	var notes []string
	for _, rec := range out.RawLog {
		if rec.Skipped {
			notes = append(notes, rec.Note)
		}
	}
	return notes
}
