package llm

import (
	"errors"
	"testing"
)

func TestGollmAdapterTranslateError(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}

	tests := []struct {
		msg   string
		check func(error) bool
	}{
		{"401 Unauthorized", func(err error) bool { var e *AuthenticationError; return errors.As(err, &e) }},
		{"invalid api key", func(err error) bool { var e *AuthenticationError; return errors.As(err, &e) }},
		{"403 Forbidden", func(err error) bool { var e *AccessDeniedError; return errors.As(err, &e) }},
		{"404 not found", func(err error) bool { var e *NotFoundError; return errors.As(err, &e) }},
		{"429 rate limit exceeded", func(err error) bool { var e *RateLimitError; return errors.As(err, &e) }},
		{"context length exceeded", func(err error) bool { var e *ContextLengthError; return errors.As(err, &e) }},
		{"500 internal server error", func(err error) bool { var e *ServerError; return errors.As(err, &e) }},
		{"timeout waiting for response", func(err error) bool { var e *RequestTimeoutError; return errors.As(err, &e) }},
		{"dial tcp: connection refused", func(err error) bool { var e *NetworkError; return errors.As(err, &e) }},
		{"content filter triggered", func(err error) bool { var e *ContentFilterError; return errors.As(err, &e) }},
		{"something unknown", func(err error) bool { var e *ProviderError; return errors.As(err, &e) && e.Retryable }},
	}

	for _, tt := range tests {
		err := adapter.translateError(errors.New(tt.msg))
		if !tt.check(err) {
			t.Errorf("%q translated to unexpected %T", tt.msg, err)
		}
	}
}

func TestGollmAdapterTranslateErrorKeepsCause(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}
	cause := errors.New("429 rate limit exceeded")

	err := adapter.translateError(cause)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if rl.StatusCode != 429 || rl.Provider != "anthropic" || !rl.Retryable {
		t.Errorf("unexpected fields: status=%d provider=%s retryable=%v", rl.StatusCode, rl.Provider, rl.Retryable)
	}
	if !errors.Is(err, cause) {
		t.Error("translated error should unwrap to the gollm error")
	}
	if !IsRetryable(err) {
		t.Error("rate limit should be retryable")
	}

	slow := errors.New("deadline exceeded")
	timeout := adapter.translateError(slow)
	var te *RequestTimeoutError
	if !errors.As(timeout, &te) || !errors.Is(timeout, slow) {
		t.Errorf("expected a RequestTimeoutError wrapping the cause, got %v", timeout)
	}
	if !IsRetryable(timeout) {
		t.Error("timeouts should be retryable")
	}
}

func TestTranslateRequestFlattensConversation(t *testing.T) {
	adapter := &GollmAdapter{provider: "openai"}
	prompt := adapter.translateRequest(Request{
		Messages: []Message{
			SystemMessage("be terse"),
			UserMessage("first"),
			AssistantMessage("reply"),
			UserMessage("second"),
		},
		ResponseFormat: &ResponseFormat{Type: "json_schema", Schema: map[string]any{"type": "object"}},
	})
	if prompt == nil {
		t.Fatal("expected a prompt")
	}
	if prompt.Input != "first\n[Assistant]: reply\nsecond" {
		t.Errorf("unexpected prompt input %q", prompt.Input)
	}
}

func TestEstimateTokens(t *testing.T) {
	req := Request{Messages: []Message{UserMessage("abcdefghijklmnop")}}
	if got := estimateTokens(req); got != 4 {
		t.Errorf("expected 4 tokens, got %d", got)
	}
	if got := estimateTokens(Request{}); got != 10 {
		t.Errorf("expected floor of 10 tokens, got %d", got)
	}
}
