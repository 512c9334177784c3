package engine

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// Parsed is the parser's verdict on one reply. Exactly one of Calls,
// Answer or Truncated is meaningful.
type Parsed struct {
	Calls     []Call
	Answer    *Answer
	Truncated bool
	// Salvaged marks a call recovered from a truncated file write.
	Salvaged bool
}

// Parser turns model replies into calls or answers.
type Parser struct {
	Vocabulary Vocabulary
	// Known reports names that count as capabilities when they appear as
	// top-level object keys, in addition to the vocabulary.
	Known func(name string) bool
	// Written returns the content last recorded for a normalized path, so a
	// salvage that repeats it can be discarded.
	Written func(path string) (string, bool)
}

var (
	truncationSignature = regexp.MustCompile(`"type"\s*:\s*"(tool_call|answer)"`)
	salvageToolPattern  = regexp.MustCompile(`"(?:tool|function_name|name)"\s*:\s*"([^"]+)"`)
	salvagePathPattern  = regexp.MustCompile(`"(?:path|file_path)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	salvageContentKey   = regexp.MustCompile(`"(?:text|file_content|content)"\s*:\s*"`)
)

// Parse interprets a reply. The first strategy that yields calls wins:
// the structured object, the whole text as lenient JSON, then every
// balanced object found in the text. A truncated file write is salvaged
// when possible; other truncated tool calls are reported as Truncated.
// Anything else is an answer.
func (p Parser) Parse(reply Reply) Parsed {
	if reply.Object != nil {
		if calls := p.callsFrom(reply.Object); len(calls) > 0 {
			return Parsed{Calls: calls}
		}
		return Parsed{Answer: answerFrom(reply.Object, reply.Text)}
	}

	text := strings.TrimSpace(reply.Text)
	if v, ok := parseLenientJSON(text); ok {
		if calls := p.callsFrom(v); len(calls) > 0 {
			return Parsed{Calls: calls}
		}
		if obj, ok := v.(map[string]any); ok {
			return Parsed{Answer: answerFrom(obj, reply.Text)}
		}
	}

	var (
		calls     []Call
		answerObj map[string]any
	)
	for _, obj := range extractObjects(text) {
		found := p.callsFrom(obj)
		calls = append(calls, found...)
		if len(found) == 0 && answerObj == nil && obj["type"] == "answer" {
			answerObj = obj
		}
	}
	if len(calls) > 0 {
		return Parsed{Calls: calls}
	}

	if call, ok := p.salvageWrite(text); ok {
		return Parsed{Calls: []Call{call}, Salvaged: true}
	}
	if looksTruncated(text) {
		return Parsed{Truncated: true}
	}
	if answerObj != nil {
		return Parsed{Answer: answerFrom(answerObj, reply.Text)}
	}
	return Parsed{Answer: &Answer{Text: reply.Text}}
}

func (p Parser) known(name string) bool {
	if p.Vocabulary.Known(name) {
		return true
	}
	return p.Known != nil && p.Known(name)
}

// callsFrom decodes every call shape the model is known to produce.
func (p Parser) callsFrom(v any) []Call {
	switch t := v.(type) {
	case []any:
		var calls []Call
		for _, item := range t {
			calls = append(calls, p.callsFrom(item)...)
		}
		return calls
	case map[string]any:
		return p.callsFromObject(t)
	}
	return nil
}

func (p Parser) callsFromObject(obj map[string]any) []Call {
	switch typ, _ := obj["type"].(string); typ {
	case "tool_call":
		name := firstString(obj, "tool", "function_name", "name")
		if name == "" {
			return nil
		}
		return []Call{{Name: canonicalName(name), Args: argsFrom(firstPresent(obj, "arguments", "args", "function_arg"))}}
	case "answer":
		return nil
	}

	if list, ok := obj["tool_calls"].([]any); ok {
		var calls []Call
		for _, item := range list {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if call, ok := callFromEntry(entry); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}
	if fc, ok := obj["function_call"].(map[string]any); ok {
		if call, ok := callFromEntry(fc); ok {
			return []Call{call}
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var calls []Call
	for _, k := range keys {
		if k == "type" || !p.known(k) {
			continue
		}
		switch obj[k].(type) {
		case map[string]any, string, nil:
			calls = append(calls, Call{Name: canonicalName(k), Args: argsFrom(obj[k])})
		}
	}
	return calls
}

// callFromEntry reads {name|tool|function_name, arguments|args} and the
// {function: {name, arguments}} wrapper.
func callFromEntry(entry map[string]any) (Call, bool) {
	if fn, ok := entry["function"].(map[string]any); ok {
		entry = fn
	}
	name := firstString(entry, "name", "tool", "function_name")
	if name == "" {
		return Call{}, false
	}
	return Call{Name: canonicalName(name), Args: argsFrom(firstPresent(entry, "arguments", "args", "function_arg"))}, true
}

// argsFrom normalizes an arguments value into a map. Strings holding JSON
// objects are decoded; other strings become {"args": s}.
func argsFrom(v any) map[string]any {
	switch t := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return t
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") {
			if decoded, ok := parseLenientJSON(s); ok {
				if m, ok := decoded.(map[string]any); ok {
					return m
				}
			}
		}
		return map[string]any{"args": t}
	default:
		return map[string]any{"args": t}
	}
}

func answerFrom(obj map[string]any, raw string) *Answer {
	a := &Answer{Text: raw, Object: obj}
	if s, ok := obj["answer"].(string); ok {
		a.Text = s
	}
	if strings.TrimSpace(a.Text) == "" {
		if b, err := json.Marshal(obj); err == nil {
			a.Text = string(b)
		}
	}
	return a
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func firstPresent(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

// salvageWrite recovers a file write whose content string was cut off.
func (p Parser) salvageWrite(text string) (Call, bool) {
	m := salvageToolPattern.FindStringSubmatch(text)
	if m == nil || p.Vocabulary.Kind(m[1]) != KindWrite {
		return Call{}, false
	}
	loc := salvageContentKey.FindStringIndex(text)
	if loc == nil {
		return Call{}, false
	}
	pm := salvagePathPattern.FindStringSubmatch(text[:loc[0]])
	if pm == nil {
		return Call{}, false
	}
	rawPath := unescapeBasic(pm[1])
	path := normalizePath(rawPath)
	if path == "" {
		return Call{}, false
	}
	rest := text[loc[1]:]
	if closingQuote(rest) >= 0 {
		return Call{}, false
	}
	content := unescapeBasic(dropDanglingEscape(rest))
	if p.Written != nil {
		if prev, ok := p.Written(path); ok && prev == content {
			return Call{}, false
		}
	}
	return Call{
		Name: canonicalName(m[1]),
		Args: map[string]any{"args": map[string]any{"path": rawPath, "text": content}},
	}, true
}

// closingQuote returns the index of the first unescaped double quote.
func closingQuote(s string) int {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == '"':
			return i
		}
	}
	return -1
}

func dropDanglingEscape(s string) string {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	if n%2 == 1 {
		return s[:len(s)-1]
	}
	return s
}

// unescapeBasic decodes \n, \r, \t, \" and \\; other sequences are kept.
func unescapeBasic(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte('\\')
			b.WriteByte(s[i+1])
		}
		i++
	}
	return b.String()
}

// looksTruncated reports a reply that carries a tool_call or answer
// signature but whose braces never close.
func looksTruncated(text string) bool {
	t := strings.TrimSpace(text)
	if !truncationSignature.MatchString(t) {
		return false
	}
	if !bracesBalanced(t) {
		return true
	}
	return !strings.HasSuffix(t, "}") && !strings.HasSuffix(t, "}]")
}

func bracesBalanced(s string) bool {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
		}
	}
	return depth == 0 && !inString
}

// parseLenientJSON decodes text as JSON after removing a markdown code
// fence and // line comments outside string literals.
func parseLenientJSON(text string) (any, bool) {
	s := stripFence(strings.TrimSpace(text))
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(stripLineComments(s)), &v); err != nil {
		return nil, false
	}
	return v, true
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func stripLineComments(s string) string {
	if !strings.Contains(s, "//") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) && s[i+1] == '/' {
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// extractObjects returns every balanced top-level {...} in text that
// decodes as a JSON object. Depth tracking skips braces inside strings.
func extractObjects(text string) []map[string]any {
	var out []map[string]any
	depth, start := 0, -1
	inString, escaped := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if v, ok := parseLenientJSON(text[start : i+1]); ok {
					if obj, ok := v.(map[string]any); ok {
						out = append(out, obj)
					}
				}
				start = -1
			}
		}
	}
	return out
}
