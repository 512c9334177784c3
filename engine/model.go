package engine

import (
	"context"

	"github.com/martinemde/conductor/llm"
)

// QueryOptions configures one model query.
type QueryOptions struct {
	System      string
	Model       string
	Provider    string
	Temperature *float64
	MaxTokens   *int
	// Schema asks for a structured reply conforming to it.
	Schema     map[string]any
	SchemaName string
}

// Model is the language model the session drives. An error is treated as
// fatal for the session.
type Model interface {
	Query(ctx context.Context, prompt string, opts QueryOptions) (Reply, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, prompt string, opts QueryOptions) (Reply, error)

// Query calls f.
func (f ModelFunc) Query(ctx context.Context, prompt string, opts QueryOptions) (Reply, error) {
	return f(ctx, prompt, opts)
}

// LLMModel queries through an llm.Client.
type LLMModel struct {
	Client *llm.Client
}

// NewLLMModel wraps client.
func NewLLMModel(client *llm.Client) *LLMModel {
	return &LLMModel{Client: client}
}

// Query sends prompt and returns the text, plus the decoded object when a
// schema was requested and the reply satisfied it.
func (m *LLMModel) Query(ctx context.Context, prompt string, opts QueryOptions) (Reply, error) {
	res, err := llm.Query(ctx, m.Client, llm.QueryOptions{
		Model:       opts.Model,
		Provider:    opts.Provider,
		System:      opts.System,
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Schema:      opts.Schema,
		SchemaName:  opts.SchemaName,
	})
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: res.Text, Object: res.Object}, nil
}
