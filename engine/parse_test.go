package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() Parser {
	return Parser{Vocabulary: DefaultVocabulary()}
}

func TestParseShapes(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		calls []Call
	}{
		{
			name:  "tool_call",
			text:  `{"type":"tool_call","tool":"container_exec","arguments":{"command":"ls"}}`,
			calls: []Call{{Name: "container_exec", Args: map[string]any{"command": "ls"}}},
		},
		{
			name:  "function_name and function_arg",
			text:  `{"type":"tool_call","function_name":"container.file-read","function_arg":{"path":"a"}}`,
			calls: []Call{{Name: "container_file_read", Args: map[string]any{"path": "a"}}},
		},
		{
			name: "tool_calls list",
			text: `{"tool_calls":[{"name":"container_file_read","arguments":{"path":"a"}},{"function":{"name":"container_exec","arguments":"{\"command\":\"pwd\"}"}}]}`,
			calls: []Call{
				{Name: "container_file_read", Args: map[string]any{"path": "a"}},
				{Name: "container_exec", Args: map[string]any{"command": "pwd"}},
			},
		},
		{
			name:  "function_call",
			text:  `{"function_call":{"name":"container_ping"}}`,
			calls: []Call{{Name: "container_ping", Args: map[string]any{}}},
		},
		{
			name:  "keyed by capability",
			text:  `{"container_exec":{"command":"ls"}}`,
			calls: []Call{{Name: "container_exec", Args: map[string]any{"command": "ls"}}},
		},
		{
			name:  "string arguments",
			text:  `{"type":"tool_call","tool":"container_exec","arguments":"ls -la"}`,
			calls: []Call{{Name: "container_exec", Args: map[string]any{"args": "ls -la"}}},
		},
		{
			name:  "fenced with comments",
			text:  "```json\n{\"type\":\"tool_call\", // run it\n\"tool\":\"container_exec\",\"arguments\":{\"command\":\"echo //x\"}}\n```",
			calls: []Call{{Name: "container_exec", Args: map[string]any{"command": "echo //x"}}},
		},
		{
			name: "objects embedded in prose",
			text: "First I will read.\n{\"type\":\"tool_call\",\"tool\":\"container_file_read\",\"arguments\":{\"path\":\"{a}\"}}\nthen\n{\"type\":\"tool_call\",\"tool\":\"container_exec\",\"arguments\":{\"command\":\"ls\"}}",
			calls: []Call{
				{Name: "container_file_read", Args: map[string]any{"path": "{a}"}},
				{Name: "container_exec", Args: map[string]any{"command": "ls"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testParser().Parse(Reply{Text: tt.text})
			assert.False(t, got.Truncated)
			assert.Nil(t, got.Answer)
			assert.Equal(t, tt.calls, got.Calls)
		})
	}
}

func TestParseAnswers(t *testing.T) {
	got := testParser().Parse(Reply{Text: `{"type":"answer","answer":"done"}`})
	require.NotNil(t, got.Answer)
	assert.Empty(t, got.Calls)
	assert.Equal(t, "done", got.Answer.Text)

	got = testParser().Parse(Reply{Text: "All finished, nothing else to do."})
	require.NotNil(t, got.Answer)
	assert.Equal(t, "All finished, nothing else to do.", got.Answer.Text)
	assert.Nil(t, got.Answer.Object)

	got = testParser().Parse(Reply{Text: "Summary:\n{\"type\":\"answer\",\"answer\":{\"status\":\"ok\"}}"})
	require.NotNil(t, got.Answer)
	assert.Equal(t, "ok", got.Answer.Field("status"))
}

func TestParseStructuredObjectWins(t *testing.T) {
	got := testParser().Parse(Reply{
		Text:   "ignored",
		Object: map[string]any{"type": "tool_call", "tool": "container_exec", "arguments": map[string]any{"command": "ls"}},
	})
	require.Len(t, got.Calls, 1)
	assert.Equal(t, "container_exec", got.Calls[0].Name)
}

func TestParseUnknownTopLevelKeysNeedCatalogue(t *testing.T) {
	text := `{"pages_status":{"id":"x"}}`
	assert.Empty(t, testParser().Parse(Reply{Text: text}).Calls)

	p := testParser()
	p.Known = func(name string) bool { return name == "pages_status" }
	got := p.Parse(Reply{Text: text})
	require.Len(t, got.Calls, 1)
	assert.Equal(t, "pages_status", got.Calls[0].Name)
}

func TestParseTruncated(t *testing.T) {
	got := testParser().Parse(Reply{Text: `{"type":"tool_call","tool":"write_file","arguments":{"path":"a.txt","text":"hi"`})
	assert.True(t, got.Truncated)
	assert.Empty(t, got.Calls)
	assert.Nil(t, got.Answer)
}

func TestParseSalvagesWrite(t *testing.T) {
	text := `{"type":"tool_call","tool":"container_file_write","arguments":{"path":"./site/index.html","text":"<p class=\"x\">hi\n\`
	got := testParser().Parse(Reply{Text: text})
	require.True(t, got.Salvaged)
	require.Len(t, got.Calls, 1)
	assert.Equal(t, "container_file_write", got.Calls[0].Name)
	assert.Equal(t, map[string]any{"args": map[string]any{
		"path": "./site/index.html",
		"text": "<p class=\"x\">hi\n",
	}}, got.Calls[0].Args)
}

func TestParseSalvageDiscardsRepeatedContent(t *testing.T) {
	p := testParser()
	p.Written = func(path string) (string, bool) {
		return "<html", path == "index.html"
	}
	got := p.Parse(Reply{Text: `{"type":"tool_call","tool":"container_file_write","arguments":{"path":"index.html","text":"<html`})
	assert.Empty(t, got.Calls)
	assert.True(t, got.Truncated)
}

func TestLooksTruncated(t *testing.T) {
	assert.False(t, looksTruncated(`plain text`))
	assert.False(t, looksTruncated(`{"type":"answer","answer":"a } b"}`))
	assert.True(t, looksTruncated(`{"type":"answer","answer":"a`))
	assert.True(t, looksTruncated(`{"type":"answer"} trailing`))
}

func TestArgsFrom(t *testing.T) {
	assert.Equal(t, map[string]any{}, argsFrom(nil))
	assert.Equal(t, map[string]any{"a": 1.0}, argsFrom(`{"a":1}`))
	assert.Equal(t, map[string]any{"args": "ls"}, argsFrom("ls"))
	assert.Equal(t, map[string]any{"args": []any{"a"}}, argsFrom([]any{"a"}))
}

func TestUnescapeBasic(t *testing.T) {
	assert.Equal(t, "a\nb\t\"c\"\\d\\x", unescapeBasic(`a\nb\t\"c\"\\d\x`))
	assert.Equal(t, "abc", dropDanglingEscape(`abc\`))
	assert.Equal(t, `abc\\`, dropDanglingEscape(`abc\\`))
}
