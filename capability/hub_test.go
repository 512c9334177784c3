package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	entries   []Entry
	listErr   error
	refreshes int
	calls     []string
}

func (s *stubProvider) ListCapabilities(context.Context) ([]Entry, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]Entry(nil), s.entries...), nil
}

func (s *stubProvider) Invoke(_ context.Context, locator, name string, _ map[string]any) (*Result, error) {
	s.calls = append(s.calls, locator+"/"+name)
	return TextResult("ok", false), nil
}

func (s *stubProvider) Refresh(context.Context) error {
	s.refreshes++
	return nil
}

func TestHubListAssignsLocators(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Register("local", &stubProvider{entries: []Entry{{Name: "container_exec"}}})
	h.Register("remote", &stubProvider{entries: []Entry{{Name: "pages_deploy_from_upload"}}})

	entries, err := h.ListCapabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Name: "container_exec", Locator: "local"}, entries[0])
	assert.Equal(t, "remote", entries[1].Locator)
}

func TestHubSkipsFailingProvider(t *testing.T) {
	h := NewHub(zerolog.Nop())
	h.Register("down", &stubProvider{listErr: errors.New("unreachable")})
	h.Register("up", &stubProvider{entries: []Entry{{Name: "container_exec"}}})

	entries, err := h.ListCapabilities(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "up", entries[0].Locator)
}

func TestHubNoProviders(t *testing.T) {
	_, err := NewHub(zerolog.Nop()).ListCapabilities(context.Background())
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestHubInvokeRoutesByLocator(t *testing.T) {
	local := &stubProvider{}
	h := NewHub(zerolog.Nop())
	h.Register("local", local)

	res, err := h.Invoke(context.Background(), "local", "container_ping", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text())
	assert.Equal(t, []string{"local/container_ping"}, local.calls)

	_, err = h.Invoke(context.Background(), "elsewhere", "container_ping", nil)
	assert.ErrorIs(t, err, ErrInvalidLocator)
}

func TestHubRefresh(t *testing.T) {
	p := &stubProvider{}
	h := NewHub(zerolog.Nop())
	h.Register("p", p)
	require.NoError(t, h.Refresh(context.Background()))
	assert.Equal(t, 1, p.refreshes)
}
