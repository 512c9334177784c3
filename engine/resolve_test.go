package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/conductor/capability"
)

func catalogueOf(names ...string) *capability.Catalogue {
	entries := make([]capability.Entry, len(names))
	for i, n := range names {
		entries[i] = capability.Entry{Name: n, Locator: "box"}
	}
	return capability.NewCatalogue(entries)
}

func TestResolverExactAndNormalized(t *testing.T) {
	r := NewResolver(catalogueOf("container_file_read", "container_exec"), DefaultVocabulary(), nil)

	res, ok := r.Resolve("container_exec")
	require.True(t, ok)
	assert.False(t, res.Emulated)
	assert.Equal(t, "container_exec", res.Entry.Name)

	res, ok = r.Resolve("Container.File-Read")
	require.True(t, ok)
	assert.Equal(t, "container_file_read", res.Entry.Name)

	_, ok = r.Resolve("pages_upload_put")
	assert.False(t, ok)
}

func TestResolverEmulatesListing(t *testing.T) {
	r := NewResolver(catalogueOf("container_exec"), DefaultVocabulary(), nil)

	for _, name := range []string{"container_files_list", "container_list_files", "container.file-list"} {
		res, ok := r.Resolve(name)
		require.True(t, ok, name)
		assert.True(t, res.Emulated, name)
		assert.Equal(t, "container_exec", res.Entry.Name)
		assert.Equal(t, listFilesCommand, commandOf(res.Args))
	}

	r = NewResolver(catalogueOf("container_file_read"), DefaultVocabulary(), nil)
	_, ok := r.Resolve("container_files_list")
	assert.False(t, ok)
}

func TestResolverPrefersRealListing(t *testing.T) {
	r := NewResolver(catalogueOf("container_exec", "container_files_list"), DefaultVocabulary(), nil)
	res, ok := r.Resolve("container_list_files")
	require.True(t, ok)
	assert.False(t, res.Emulated)
	assert.Equal(t, "container_files_list", res.Entry.Name)
}

func TestCoerceArgs(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		in   map[string]any
		want map[string]any
	}{
		{
			name: "flat write",
			kind: KindWrite,
			in:   map[string]any{"file_path": "a.txt", "file_content": "hi"},
			want: map[string]any{"args": map[string]any{"path": "a.txt", "text": "hi"}},
		},
		{
			name: "nested write passes through",
			kind: KindWrite,
			in:   map[string]any{"args": map[string]any{"path": "a.txt", "text": "hi"}},
			want: map[string]any{"args": map[string]any{"path": "a.txt", "text": "hi"}},
		},
		{
			name: "flat read",
			kind: KindRead,
			in:   map[string]any{"path": "a.txt"},
			want: map[string]any{"args": map[string]any{"path": "a.txt"}},
		},
		{
			name: "exec command string",
			kind: KindExec,
			in:   map[string]any{"command": "ls", "timeout": 5000},
			want: map[string]any{"args": map[string]any{"args": "ls", "streamStderr": true, "timeout": 5000}},
		},
		{
			name: "exec bare args array",
			kind: KindExec,
			in:   map[string]any{"args": []any{"ls", "-la"}},
			want: map[string]any{"args": map[string]any{"args": "ls -la", "streamStderr": true}},
		},
		{
			name: "exec nested passes through",
			kind: KindExec,
			in:   map[string]any{"args": map[string]any{"args": "ls", "streamStderr": false}},
			want: map[string]any{"args": map[string]any{"args": "ls", "streamStderr": false}},
		},
		{
			name: "init drops arguments",
			kind: KindInit,
			in:   map[string]any{"image": "node"},
			want: map[string]any{},
		},
		{
			name: "unknown kind unchanged",
			kind: KindOther,
			in:   map[string]any{"x": 1},
			want: map[string]any{"x": 1},
		},
		{
			name: "nil becomes empty",
			kind: KindPublish,
			in:   nil,
			want: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceArgs(tt.kind, tt.in))
		})
	}
}

func TestVocabularyKinds(t *testing.T) {
	v := DefaultVocabulary()
	assert.Equal(t, KindWrite, v.Kind("container_file_write"))
	assert.Equal(t, KindWrite, v.Kind("Container-File.Write"))
	assert.Equal(t, KindList, v.Kind("container_list_files"))
	assert.Equal(t, KindPublish, v.Kind("pages_upload_put"))
	assert.Equal(t, KindOther, v.Kind("write_file"))
	assert.Equal(t, KindOther, v.Kind(""))
	assert.True(t, v.DuplicateTolerant("container_initialize"))
	assert.False(t, v.DuplicateTolerant("container_file_read"))
	assert.Equal(t, "container_exec", v.NameFor(KindExec))
	assert.Empty(t, v.NameFor(KindPublish))
}

func TestVocabularyDefaultsFillGaps(t *testing.T) {
	cfg := Config{Vocabulary: Vocabulary{Exec: "shell_run"}}.withDefaults()
	assert.Equal(t, "shell_run", cfg.Vocabulary.Exec)
	assert.Equal(t, "container_file_write", cfg.Vocabulary.Write)
	assert.Equal(t, DefaultArchivePath, cfg.Vocabulary.ArchivePath)
	assert.Equal(t, DefaultMaxRounds, cfg.MaxRounds)
	assert.Equal(t, DefaultRetryDelay, cfg.RetryDelay)
}
