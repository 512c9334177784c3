package capability

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Hub merges several providers. Each entry it lists carries the ID of the
// provider that owns it as its locator.
type Hub struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
	logger    zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		providers: make(map[string]Provider),
		logger:    logger,
	}
}

// Register adds or replaces a provider under id.
func (h *Hub) Register(id string, p Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providers[id]; !exists {
		h.order = append(h.order, id)
	}
	h.providers[id] = p
}

// ProviderIDs returns the registered provider IDs in registration order.
func (h *Hub) ProviderIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.order...)
}

func (h *Hub) snapshot() ([]string, map[string]Provider) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	providers := make(map[string]Provider, len(h.providers))
	for id, p := range h.providers {
		providers[id] = p
	}
	return append([]string(nil), h.order...), providers
}

// ListCapabilities lists every provider concurrently. A provider that fails
// to list is logged and skipped so one unreachable server does not hide the
// rest.
func (h *Hub) ListCapabilities(ctx context.Context) ([]Entry, error) {
	order, providers := h.snapshot()
	if len(order) == 0 {
		return nil, ErrNoProviders
	}

	lists := make([][]Entry, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range order {
		g.Go(func() error {
			entries, err := providers[id].ListCapabilities(gctx)
			if err != nil {
				h.logger.Warn().Err(err).Str("provider", id).Msg("listing capabilities failed")
				return nil
			}
			for j := range entries {
				entries[j].Locator = id
			}
			lists[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Entry
	for _, l := range lists {
		all = append(all, l...)
	}
	return all, nil
}

// Invoke routes the call to the provider named by locator.
func (h *Hub) Invoke(ctx context.Context, locator, name string, args map[string]any) (*Result, error) {
	h.mu.RLock()
	p, ok := h.providers[locator]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return p.Invoke(ctx, locator, name, args)
}

// Refresh asks every provider that caches its catalogue to reload it.
func (h *Hub) Refresh(ctx context.Context) error {
	order, providers := h.snapshot()
	var firstErr error
	for _, id := range order {
		r, ok := providers[id].(Refresher)
		if !ok {
			continue
		}
		if err := r.Refresh(ctx); err != nil {
			h.logger.Warn().Err(err).Str("provider", id).Msg("refreshing capabilities failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Close closes every provider that holds resources.
func (h *Hub) Close() error {
	order, providers := h.snapshot()
	var firstErr error
	for _, id := range order {
		if c, ok := providers[id].(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
