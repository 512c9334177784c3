package llm

import "strings"

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. The engine rebuilds its transcript
// every round, so content is plain text.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message { return Message{Role: RoleSystem, Text: text} }

// UserMessage creates a user Message.
func UserMessage(text string) Message { return Message{Role: RoleUser, Text: text} }

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Text: text} }

// ResponseFormat asks the provider for a particular output shape.
type ResponseFormat struct {
	Type   string         `json:"type"` // "text", "json", "json_schema"
	Name   string         `json:"name,omitempty"`
	Schema map[string]any `json:"schema,omitempty"`
}

// Request is the input to Client.Complete.
type Request struct {
	Model          string            `json:"model"`
	Provider       string            `json:"provider,omitempty"`
	Messages       []Message         `json:"messages"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// System returns the concatenated system messages of the request.
func (r Request) System() string {
	var parts []string
	for _, m := range r.Messages {
		if m.Role == RoleSystem && m.Text != "" {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
	}
}

// Response is the output of Client.Complete.
type Response struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"` // "stop", "length", "error"
	Usage        Usage  `json:"usage"`
}
