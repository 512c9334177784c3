package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/martinemde/conductor/capability"
)

func TestTruncateOutput(t *testing.T) {
	assert.Equal(t, "short", TruncateOutput("short", 10, TruncateHeadTail))

	out := TruncateOutput(strings.Repeat("a", 50)+strings.Repeat("b", 50), 20, TruncateHeadTail)
	assert.True(t, strings.HasPrefix(out, strings.Repeat("a", 10)))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("b", 10)))
	assert.Contains(t, out, "80 characters removed from the middle")

	out = TruncateOutput("0123456789", 4, TruncateTail)
	assert.Equal(t, "[output truncated: first 6 characters removed]\n6789", out)
}

func TestTruncateLines(t *testing.T) {
	var lines []string
	for i := 0; i < 10; i++ {
		lines = append(lines, string(rune('a'+i)))
	}
	out := TruncateLines(strings.Join(lines, "\n"), 4)
	assert.Equal(t, "a\nb\n[... 6 lines omitted ...]\ni\nj", out)
	assert.Equal(t, "a\nb", TruncateLines("a\nb", 4))
}

func TestResultJSONBoundsLargeResults(t *testing.T) {
	small := capability.TextResult("fine", false)
	assert.Contains(t, resultJSON(small, KindRead, 1000), `"fine"`)

	big := capability.TextResult(strings.Repeat("x", 5000), true)
	out := resultJSON(big, KindExec, 200)
	assert.Less(t, len(out), 400)
	assert.Contains(t, out, `"isError": true`)
	assert.Contains(t, out, "characters removed")

	assert.Equal(t, "null", resultJSON(nil, KindExec, 10))

	whole := capability.TextResult(strings.Repeat("y", 5000), false)
	assert.Contains(t, resultJSON(whole, KindRead, 200), strings.Repeat("y", 5000))
	assert.Contains(t, resultJSON(whole, KindPublish, 200), strings.Repeat("y", 5000))
}

func TestBuildSystemPrompt(t *testing.T) {
	entries := []capability.Entry{
		{Name: "container_exec", Description: "Run a command", ArgumentSchema: map[string]any{"type": "object"}},
		{Name: "container_ping"},
	}
	schema := map[string]any{"type": "object", "required": []any{"status"}}
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	prompt := BuildSystemPrompt("Be careful.", entries, schema, now)

	assert.True(t, strings.HasPrefix(prompt, "Be careful.\n\n"))
	assert.Contains(t, prompt, "Today's date: 2026-03-04")
	assert.Contains(t, prompt, "- container_exec\n  Description: Run a command\n  Param JSON Schema: {\"type\":\"object\"}\n")
	assert.Contains(t, prompt, "- container_ping\n")
	assert.Contains(t, prompt, replyProtocol)
	assert.Contains(t, prompt, `"required": [`)

	assert.Contains(t, BuildSystemPrompt("", nil, nil, now), "Available capabilities: none")
}

func TestProfiles(t *testing.T) {
	assert.Equal(t, []string{"coder", "fullstack"}, ProfileNames())

	p, err := ProfileByName(" Coder ")
	assert.NoError(t, err)
	assert.Equal(t, "site_zip_base64", p.RequiredAnswerField)
	assert.Equal(t, "Implement this plan:\n\nbuild it", p.Goal(" build it "))

	_, err = ProfileByName("nope")
	assert.ErrorContains(t, err, "coder, fullstack")

	assert.Equal(t, "(no goal provided)", Profile{}.Goal("  "))
}
