package engine

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
)

// Call is a capability invocation requested by the model.
type Call struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Fingerprint identifies a call for repetition checks: the name plus a hash
// of the canonical JSON encoding of its arguments. Map keys are sorted by
// encoding/json, so argument order does not matter.
func (c Call) Fingerprint() string {
	return callSignature(c.Name, c.Args)
}

func callSignature(name string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		b = []byte(fmt.Sprint(args))
	}
	h := sha256.Sum256(b)
	return fmt.Sprintf("%s:%x", name, h[:12])
}

// Reply is what the model returned for one query. Object is set when the
// model produced a structured reply rather than plain text.
type Reply struct {
	Text   string
	Object map[string]any
}

// Answer is a terminal reply.
type Answer struct {
	Text   string         `json:"text"`
	Object map[string]any `json:"object,omitempty"`
}

// Field returns a string field of the answer. It looks inside a nested
// "answer" object first, then at the top level.
func (a *Answer) Field(name string) string {
	if a == nil || a.Object == nil {
		return ""
	}
	if inner, ok := a.Object["answer"].(map[string]any); ok {
		if s, ok := inner[name].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	if s, ok := a.Object[name].(string); ok {
		return s
	}
	return ""
}

// prettyJSON renders v indented for transcript summaries.
func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if inner, ok := v.(map[string]any); ok {
			out[k] = cloneArgs(inner)
			continue
		}
		out[k] = v
	}
	return out
}
