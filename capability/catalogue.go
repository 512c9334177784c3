package capability

import (
	"sort"
	"sync"
)

// Catalogue is an ordered, name-indexed set of entries. The first entry for
// a name wins; later duplicates are dropped.
type Catalogue struct {
	mu      sync.RWMutex
	entries []Entry
	byName  map[string]int
}

// NewCatalogue builds a Catalogue from entries.
func NewCatalogue(entries []Entry) *Catalogue {
	c := &Catalogue{}
	c.Replace(entries)
	return c
}

// Replace swaps the catalogue contents, as after a directory refresh.
func (c *Catalogue) Replace(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make([]Entry, 0, len(entries))
	c.byName = make(map[string]int, len(entries))
	for _, e := range entries {
		if _, dup := c.byName[e.Name]; dup {
			continue
		}
		c.byName[e.Name] = len(c.entries)
		c.entries = append(c.entries, e)
	}
}

// Lookup returns the entry with exactly this name.
func (c *Catalogue) Lookup(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byName[name]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// Has reports whether name is in the catalogue.
func (c *Catalogue) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Entries returns a copy of the entries in catalogue order.
func (c *Catalogue) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Names returns the entry names in catalogue order.
func (c *Catalogue) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of entries.
func (c *Catalogue) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Missing returns the sorted subset of names absent from the catalogue.
func (c *Catalogue) Missing(names []string) []string {
	var missing []string
	for _, n := range names {
		if !c.Has(n) {
			missing = append(missing, n)
		}
	}
	sort.Strings(missing)
	return missing
}
