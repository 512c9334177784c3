package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlannedArtifacts(t *testing.T) {
	tests := []struct {
		name string
		goal string
		want []string
	}{
		{
			name: "array of paths",
			goal: `{"development_plan":{"files":["./site/b.css","site/a.html","site/a.html"]}}`,
			want: []string{"site/a.html", "site/b.css"},
		},
		{
			name: "array of objects under planner",
			goal: `{"planner":{"development_plan":{"files":[{"path":"index.html"},{"name":"ignored"}]}}}`,
			want: []string{"index.html"},
		},
		{
			name: "object keyed by path",
			goal: `{"development_plan":{"files":{"b.js":{},"a.js":{}}}}`,
			want: []string{"a.js", "b.js"},
		},
		{
			name: "yaml",
			goal: "development_plan:\n  files:\n    - site/index.html\n    - site/app.js\n",
			want: []string{"site/app.js", "site/index.html"},
		},
		{name: "prose", goal: "build me a website", want: nil},
		{name: "no files", goal: `{"development_plan":{"steps":[]}}`, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlannedArtifacts(tt.goal))
		})
	}
}

func TestCoverageGate(t *testing.T) {
	l := NewLedger()
	g := NewCoverageGate([]string{"site/a.html", "site/b.css", "site/c.js"}, l, DefaultVocabulary())
	zip := map[string]any{"args": map[string]any{"args": "cd site && zip -r /tmp/site.zip ."}}

	l.RecordWrite("site/a.html", "a")
	l.RecordWrite("./site/b.css", "b")

	c, blocked := g.Blocked("container_exec", zip)
	require.True(t, blocked)
	assert.Equal(t, Coverage{Total: 3, Done: 2, Missing: []string{"site/c.js"}}, c)

	_, blocked = g.Blocked("container_exec", map[string]any{"args": map[string]any{"args": "mkdir -p site"}})
	assert.False(t, blocked)
	_, blocked = g.Blocked("container_file_write", map[string]any{"args": map[string]any{"path": "site/c.js"}})
	assert.False(t, blocked)
	_, blocked = g.Blocked("pages_upload_put", nil)
	assert.True(t, blocked)
	_, blocked = g.Blocked("container_file_read", map[string]any{"args": map[string]any{"path": "/tmp/site.zip"}})
	assert.True(t, blocked)

	l.RecordWrite("site/c.js", "c")
	c, blocked = g.Blocked("container_exec", zip)
	assert.False(t, blocked)
	assert.Equal(t, Coverage{Complete: true, Total: 3, Done: 3, Missing: []string{}}, c)
}

func TestCoverageGateInactiveWithoutManifest(t *testing.T) {
	g := NewCoverageGate(nil, NewLedger(), DefaultVocabulary())
	assert.False(t, g.Active())
	_, blocked := g.Blocked("pages_deploy_from_upload", nil)
	assert.False(t, blocked)
}

func TestIsPackaging(t *testing.T) {
	g := NewCoverageGate(nil, NewLedger(), DefaultVocabulary())
	exec := func(cmd string) map[string]any { return map[string]any{"args": map[string]any{"args": cmd}} }

	assert.True(t, g.IsPackaging("container_exec", exec("python3 -c 'import zipfile'")))
	assert.True(t, g.IsPackaging("container_exec", exec("base64 -w0 /tmp/site.zip")))
	assert.True(t, g.IsPackaging("container_exec", exec("python3 -c 'import base64; base64.b64encode(x)'")))
	assert.False(t, g.IsPackaging("container_exec", exec("gzip -k notes.txt")))
	assert.False(t, g.IsPackaging("container_file_read", map[string]any{"args": map[string]any{"path": "site/index.html"}}))
}
