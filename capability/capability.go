// Package capability models the external operations a model may request:
// the catalogue of named capabilities with their argument schemas, and the
// providers that list and invoke them.
//
// Two providers ship with the package. MCPProvider talks to Model Context
// Protocol servers; WorkspaceProvider runs the container vocabulary
// (file write/read/delete, command execution, listing) against a local
// directory. Hub merges any number of providers behind one Directory and
// Invoker, using the provider ID as the locator.
package capability

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrNotFound reports a capability name absent from the catalogue.
	ErrNotFound = errors.New("capability not found")
	// ErrInvalidLocator reports a locator that no provider answers to.
	ErrInvalidLocator = errors.New("invalid capability locator")
	// ErrNoProviders reports a Hub with nothing registered.
	ErrNoProviders = errors.New("no capability providers configured")
)

// Entry describes one capability in the catalogue.
type Entry struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	ArgumentSchema map[string]any `json:"argument_schema,omitempty"`
	Locator        string         `json:"locator"`
}

// Content is one block of an invocation result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Body string `json:"body,omitempty"`
}

// Result is the outcome of an invocation that reached the provider.
type Result struct {
	IsError    bool      `json:"isError"`
	Content    []Content `json:"content"`
	Structured any       `json:"structuredContent,omitempty"`
}

// TextResult builds a single-block text Result.
func TextResult(text string, isError bool) *Result {
	return &Result{IsError: isError, Content: []Content{{Type: "text", Text: text}}}
}

// Text returns the concatenated text of the result's content blocks, or the
// JSON encoding of the structured content when there is no text.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	var parts []string
	for _, c := range r.Content {
		switch {
		case c.Text != "":
			parts = append(parts, c.Text)
		case c.Body != "":
			parts = append(parts, c.Body)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	if r.Structured != nil {
		if b, err := json.Marshal(r.Structured); err == nil {
			return string(b)
		}
	}
	return ""
}

// Directory lists the capabilities currently available.
type Directory interface {
	ListCapabilities(ctx context.Context) ([]Entry, error)
}

// Invoker calls a capability by locator and name. An error return means the
// call never produced a result; a Result with IsError set is a failure the
// capability itself reported.
type Invoker interface {
	Invoke(ctx context.Context, locator, name string, args map[string]any) (*Result, error)
}

// Provider is both a Directory and an Invoker.
type Provider interface {
	Directory
	Invoker
}

// Refresher is implemented by providers whose catalogue can go stale.
type Refresher interface {
	Refresh(ctx context.Context) error
}
