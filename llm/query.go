package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// QueryOptions configures a single-turn Query.
type QueryOptions struct {
	Model       string
	Provider    string
	System      string
	Prompt      string
	Temperature *float64
	MaxTokens   *int

	// Schema, when set, requests a JSON object reply conforming to it.
	Schema     map[string]any
	SchemaName string
}

// QueryResult is the reply to a Query. Object is set only when the reply
// decoded as a JSON object that satisfies the requested schema.
type QueryResult struct {
	Text             string
	Object           map[string]any
	ValidationErrors []string
	Response         *Response
}

// Query sends one prompt and returns the reply as text and, when a schema was
// requested, as a decoded object.
func Query(ctx context.Context, client *Client, opts QueryOptions) (*QueryResult, error) {
	if client == nil {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "llm.Query requires a client"}}
	}
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "llm.Query requires a prompt"}}
	}

	var messages []Message
	if opts.System != "" {
		messages = append(messages, SystemMessage(opts.System))
	}
	messages = append(messages, UserMessage(opts.Prompt))

	req := Request{
		Model:       opts.Model,
		Provider:    opts.Provider,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.Schema != nil {
		req.ResponseFormat = &ResponseFormat{Type: "json_schema", Name: opts.SchemaName, Schema: opts.Schema}
	}

	resp, err := client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Text: resp.Text, Response: resp}
	if opts.Schema == nil {
		return result, nil
	}

	obj, ok := decodeObject(resp.Text)
	if !ok {
		return result, nil
	}
	problems, err := validateObject(opts.Schema, obj)
	if err != nil {
		return nil, fmt.Errorf("validate reply against schema: %w", err)
	}
	result.ValidationErrors = problems
	if len(problems) == 0 {
		result.Object = obj
	}
	return result, nil
}

// decodeObject parses text as a JSON object, tolerating a surrounding
// markdown code fence.
func decodeObject(text string) (map[string]any, bool) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

func validateObject(schema map[string]any, obj map[string]any) ([]string, error) {
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(obj))
	if err != nil {
		return nil, err
	}
	var problems []string
	for _, e := range res.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}
