package engine

import (
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Coverage summarizes how much of the planned manifest has been written.
type Coverage struct {
	Complete bool     `json:"complete"`
	Total    int      `json:"total"`
	Done     int      `json:"done"`
	Missing  []string `json:"missing"`
}

// PlannedArtifacts reads the file manifest from a goal document, returning
// normalized, sorted, de-duplicated paths. The manifest lives under
// development_plan.files or planner.development_plan.files and may be an
// array of paths, an array of {path} objects, or an object keyed by path.
// The goal is decoded as lenient JSON first, then as YAML. A goal without a
// manifest yields nil.
func PlannedArtifacts(goal string) []string {
	doc := decodeGoal(goal)
	if doc == nil {
		return nil
	}
	plan, ok := doc["development_plan"].(map[string]any)
	if !ok {
		if planner, ok := doc["planner"].(map[string]any); ok {
			plan, _ = planner["development_plan"].(map[string]any)
		}
	}
	if plan == nil {
		return nil
	}

	seen := make(map[string]bool)
	add := func(p string) {
		if p = normalizePath(p); p != "" {
			seen[p] = true
		}
	}
	switch files := plan["files"].(type) {
	case []any:
		for _, item := range files {
			switch v := item.(type) {
			case string:
				add(v)
			case map[string]any:
				if p, ok := v["path"].(string); ok {
					add(p)
				}
			}
		}
	case map[string]any:
		for k := range files {
			add(k)
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func decodeGoal(goal string) map[string]any {
	if v, ok := parseLenientJSON(goal); ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
		return nil
	}
	var m map[string]any
	if err := yaml.Unmarshal([]byte(goal), &m); err != nil {
		return nil
	}
	return m
}

// CoverageGate blocks packaging and publish calls until every planned path
// has been written. With no manifest it never blocks.
type CoverageGate struct {
	planned []string
	ledger  *Ledger
	vocab   Vocabulary
}

// NewCoverageGate builds a gate over the planned paths.
func NewCoverageGate(planned []string, ledger *Ledger, vocab Vocabulary) *CoverageGate {
	return &CoverageGate{planned: planned, ledger: ledger, vocab: vocab.withDefaults()}
}

// Active reports whether a manifest was declared.
func (g *CoverageGate) Active() bool { return len(g.planned) > 0 }

// Planned returns the manifest.
func (g *CoverageGate) Planned() []string {
	out := make([]string, len(g.planned))
	copy(out, g.planned)
	return out
}

// Coverage reports the current state of the manifest.
func (g *CoverageGate) Coverage() Coverage {
	c := Coverage{Total: len(g.planned), Missing: []string{}}
	for _, p := range g.planned {
		if g.ledger.Written(p) {
			c.Done++
		} else {
			c.Missing = append(c.Missing, p)
		}
	}
	c.Complete = c.Total > 0 && c.Done == c.Total
	return c
}

// packagingCommand matches exec commands that build or encode an archive.
var packagingCommand = regexp.MustCompile(`(?i)\bzip\b|site\.zip|zipfile|base64\s*\.b64|b64encode`)

// IsPackaging classifies a resolved call as packaging or publish-class:
// any publish capability, an exec whose command builds an archive, or a
// read of the archive path.
func (g *CoverageGate) IsPackaging(name string, args map[string]any) bool {
	switch g.vocab.Kind(name) {
	case KindPublish:
		return true
	case KindExec:
		return packagingCommand.MatchString(commandOf(args))
	case KindRead:
		return strings.Contains(pathOf(args), g.vocab.ArchivePath)
	}
	return false
}

// Blocked returns the current coverage and true when the call must be
// skipped.
func (g *CoverageGate) Blocked(name string, args map[string]any) (Coverage, bool) {
	if !g.Active() || !g.IsPackaging(name, args) {
		return Coverage{}, false
	}
	c := g.Coverage()
	return c, !c.Complete
}
