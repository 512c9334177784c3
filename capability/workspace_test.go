package capability

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) (*WorkspaceProvider, string) {
	t.Helper()
	root := t.TempDir()
	ws, err := NewWorkspace(root)
	require.NoError(t, err)
	return NewWorkspaceProvider(ws), root
}

func TestWorkspaceProviderCatalogue(t *testing.T) {
	p, _ := newTestProvider(t)
	entries, err := p.ListCapabilities(context.Background())
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
		assert.NotEmpty(t, e.ArgumentSchema, e.Name)
	}
	assert.ElementsMatch(t, []string{
		ToolInitialize, ToolPing, ToolFileWrite, ToolFileRead, ToolFileDelete, ToolExec, ToolFilesList,
	}, names)
}

func TestWorkspaceWriteReadDelete(t *testing.T) {
	p, root := newTestProvider(t)
	ctx := context.Background()

	res, err := p.Invoke(ctx, "", ToolFileWrite, map[string]any{"args": map[string]any{"path": "site/index.html", "text": "<h1>hi</h1>"}})
	require.NoError(t, err)
	require.False(t, res.IsError, res.Text())

	data, err := os.ReadFile(filepath.Join(root, "site", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(data))

	res, err = p.Invoke(ctx, "", ToolFileRead, map[string]any{"args": map[string]any{"path": "site/index.html"}})
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", res.Text())

	res, err = p.Invoke(ctx, "", ToolFileDelete, map[string]any{"args": map[string]any{"path": "site/index.html"}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	_, err = os.Stat(filepath.Join(root, "site", "index.html"))
	assert.True(t, os.IsNotExist(err))
}

func TestWorkspaceReadBinaryIsBase64(t *testing.T) {
	p, root := newTestProvider(t)
	raw := []byte{0x50, 0x4b, 0x03, 0x04, 0xff, 0xfe}
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.zip"), raw, 0o644))

	res, err := p.Invoke(context.Background(), "", ToolFileRead, map[string]any{"args": map[string]any{"path": "site.zip"}})
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), res.Text())
}

func TestWorkspaceRejectsEscape(t *testing.T) {
	p, _ := newTestProvider(t)
	res, err := p.Invoke(context.Background(), "", ToolFileWrite, map[string]any{"args": map[string]any{"path": "../outside.txt", "text": "x"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "escapes the workspace")
}

func TestWorkspaceExec(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	res, err := p.Invoke(ctx, "", ToolExec, map[string]any{"args": map[string]any{"args": "echo hello"}})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "hello\n", res.Text())

	res, err = p.Invoke(ctx, "", ToolExec, map[string]any{"args": map[string]any{"args": "echo oops >&2; exit 3"}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "oops")

	res, err = p.Invoke(ctx, "", ToolExec, map[string]any{"args": map[string]any{"args": "sleep 5", "timeout": 100}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "timed out")
}

func TestWorkspaceListFiles(t *testing.T) {
	p, root := newTestProvider(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a", "b", "c.txt"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "top.txt"), []byte("t"), 0o644))

	res, err := p.Invoke(context.Background(), "", ToolFilesList, nil)
	require.NoError(t, err)
	assert.Equal(t, "./a/b/c.txt\n./top.txt", res.Text())
}

func TestWorkspaceInitializeIsIdempotent(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	first, err := p.Invoke(ctx, "", ToolInitialize, nil)
	require.NoError(t, err)
	second, err := p.Invoke(ctx, "", ToolInitialize, nil)
	require.NoError(t, err)
	assert.Contains(t, first.Text(), "initialized")
	assert.Contains(t, second.Text(), "already initialized")
}

func TestWorkspaceUnknownTool(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.Invoke(context.Background(), "", "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
