package engine

import (
	"github.com/xeipuuv/gojsonschema"
)

// schemaProblems validates doc against schema and returns one line per
// violation. A schema the validator cannot load yields no problems; these
// checks are advisory.
func schemaProblems(schema map[string]any, doc any) []string {
	if len(schema) == 0 {
		return nil
	}
	res, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range res.Errors() {
		out = append(out, e.String())
	}
	return out
}

// answerPayload returns the part of an answer object a profile schema
// describes: the nested "answer" object when present, else the object.
func answerPayload(a *Answer) (map[string]any, bool) {
	if a == nil || a.Object == nil {
		return nil, false
	}
	if inner, ok := a.Object["answer"].(map[string]any); ok {
		return inner, true
	}
	if _, ok := a.Object["answer"]; ok {
		return nil, false
	}
	return a.Object, true
}
