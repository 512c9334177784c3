package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Profile bundles what differs between kinds of session: model defaults,
// instructions, capability preconditions and answer requirements.
type Profile struct {
	Name        string
	Model       string
	Provider    string
	Temperature *float64
	MaxTokens   *int

	// Instructions open the system prompt.
	Instructions string
	// GoalPreamble is prepended to the caller's goal on round one.
	GoalPreamble string

	// RequiredCapabilities must all be in the catalogue before round one.
	RequiredCapabilities []string
	// RequiredAnswerField must be a non-empty string in the final answer.
	RequiredAnswerField string
	// AnswerSchema is advisory: violations are noted, never fatal.
	AnswerSchema     map[string]any
	AnswerSchemaName string

	IncludeRawLog bool
}

// Goal renders the round-one prompt for a caller's goal.
func (p Profile) Goal(goal string) string {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		goal = "(no goal provided)"
	}
	if p.GoalPreamble == "" {
		return goal
	}
	return p.GoalPreamble + "\n\n" + goal
}

func float64Ptr(v float64) *float64 { return &v }

var containerCapabilities = []string{
	"container_initialize",
	"container_exec",
	"container_file_read",
	"container_file_write",
}

// CoderProfile turns a plan into files in a container and returns the
// packaged site archive with its answer.
func CoderProfile() Profile {
	return Profile{
		Name:        "coder",
		Model:       "gpt-5-mini",
		Temperature: float64Ptr(0),
		Instructions: strings.Join([]string{
			"You implement code changes inside a container, working only through the capabilities listed below.",
			"",
			"Rules:",
			"- Call container_initialize once before anything else.",
			"- Create or update files with container_file_write; never print file contents in a reply.",
			"- Run shell commands (git, npm, build tools) with container_exec instead of suggesting them.",
			"- Treat development_plan.files in the plan as your checklist; packaging is refused until every listed file exists.",
			"- Rewrite a file at most three times, then move on.",
			"- When every file is written, zip the site directory to /tmp/site.zip, read it back, and put its base64 in \"site_zip_base64\" and its name in \"site_zip_filename\".",
			"- If the plan is ambiguous, make a reasonable assumption and record it in \"notes\". Do not ask questions.",
		}, "\n"),
		GoalPreamble:         "Implement this plan:",
		RequiredCapabilities: containerCapabilities,
		RequiredAnswerField:  "site_zip_base64",
		AnswerSchemaName:     "code_change",
		AnswerSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"files": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"path":        map[string]any{"type": "string"},
							"action":      map[string]any{"type": "string", "enum": []any{"create", "overwrite", "append", "delete"}},
							"language":    map[string]any{"type": "string"},
							"description": map[string]any{"type": "string"},
						},
						"required": []any{"path", "action"},
					},
				},
				"commands": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"run":     map[string]any{"type": "string"},
							"purpose": map[string]any{"type": "string"},
						},
						"required": []any{"run"},
					},
				},
				"notes":             map[string]any{"type": "string"},
				"site_zip_base64":   map[string]any{"type": "string"},
				"site_zip_filename": map[string]any{"type": "string"},
			},
			"required": []any{"files"},
		},
		IncludeRawLog: true,
	}
}

// FullStackProfile builds a static site, packages it and publishes it.
func FullStackProfile() Profile {
	return Profile{
		Name:        "fullstack",
		Model:       "gpt-5-mini",
		Temperature: float64Ptr(0),
		Instructions: strings.Join([]string{
			"You build a static site inside a container and publish it, working alone through the capabilities listed below.",
			"",
			"Steps:",
			"1. Create the files listed in development_plan.files with container_file_write. Keep each file small. Use container_exec with {\"args\":{\"args\":\"<command>\"}} only for commands such as mkdir.",
			"2. Once every planned file exists, build /tmp/site.zip with Python's zipfile module through container_exec and base64-encode it.",
			"3. Publish: pages_project_create if needed, pages_upload_prepare, pages_upload_put with the base64 archive, then pages_deploy_from_upload.",
			"4. Answer with the public URL returned by the deployment.",
			"",
			"Rules:",
			"- Packaging and publishing are refused until every planned file is written.",
			"- Do not repeat an identical command or rewrite a finished file.",
			"- Do not paste the base64 archive into the final answer.",
		}, "\n"),
		RequiredCapabilities: append(append([]string{}, containerCapabilities...),
			"pages_project_create", "pages_upload_prepare", "pages_upload_put", "pages_deploy_from_upload"),
		AnswerSchemaName: "site_deployment",
		AnswerSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":        map[string]any{"type": "string", "enum": []any{"success", "error"}},
				"public_url":    map[string]any{"type": "string"},
				"files_written": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"notes":         map[string]any{"type": "string"},
			},
			"required": []any{"status", "public_url"},
		},
	}
}

var profiles = map[string]func() Profile{
	"coder":     CoderProfile,
	"fullstack": FullStackProfile,
}

// ProfileNames returns the registered profile names, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for n := range profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ProfileByName returns a registered profile.
func ProfileByName(name string) (Profile, error) {
	f, ok := profiles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return f(), nil
}
