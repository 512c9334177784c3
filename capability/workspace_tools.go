package capability

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Container vocabulary names served by WorkspaceProvider.
const (
	ToolInitialize = "container_initialize"
	ToolPing       = "container_ping"
	ToolFileWrite  = "container_file_write"
	ToolFileRead   = "container_file_read"
	ToolFileDelete = "container_file_delete"
	ToolExec       = "container_exec"
	ToolFilesList  = "container_files_list"
)

type toolHandler func(ctx context.Context, args map[string]any) (*Result, error)

type workspaceTool struct {
	entry   Entry
	handler toolHandler
}

// WorkspaceProvider serves the container vocabulary over a local Workspace.
// Arguments use the nested shape {"args": {...}}.
type WorkspaceProvider struct {
	ws          *Workspace
	tools       []workspaceTool
	byName      map[string]int
	initialized atomic.Bool
}

// NewWorkspaceProvider creates a provider backed by ws.
func NewWorkspaceProvider(ws *Workspace) *WorkspaceProvider {
	p := &WorkspaceProvider{ws: ws, byName: make(map[string]int)}
	p.register(ToolInitialize, "Prepare the workspace. Safe to call more than once.", objectSchema(nil, nil), p.initialize)
	p.register(ToolPing, "Check that the workspace is reachable.", objectSchema(nil, nil), p.ping)
	p.register(ToolFileWrite, "Write a text file, creating parent directories.",
		nestedSchema(map[string]any{
			"path": stringProp("Path relative to the workspace root."),
			"text": stringProp("Full file content."),
		}, []string{"path", "text"}), p.writeFile)
	p.register(ToolFileRead, "Read a file. Binary files are returned base64 encoded.",
		nestedSchema(map[string]any{"path": stringProp("Path to read.")}, []string{"path"}), p.readFile)
	p.register(ToolFileDelete, "Delete a file.",
		nestedSchema(map[string]any{"path": stringProp("Path to delete.")}, []string{"path"}), p.deleteFile)
	p.register(ToolExec, "Run a shell command in the workspace root.",
		nestedSchema(map[string]any{
			"args":         stringProp("Shell command line."),
			"timeout":      map[string]any{"type": "integer", "description": "Timeout in milliseconds."},
			"streamStderr": map[string]any{"type": "boolean", "description": "Include stderr in the output."},
		}, []string{"args"}), p.exec)
	p.register(ToolFilesList, "List files in the workspace.", objectSchema(nil, nil), p.listFiles)
	return p
}

func (p *WorkspaceProvider) register(name, description string, schema map[string]any, h toolHandler) {
	p.byName[name] = len(p.tools)
	p.tools = append(p.tools, workspaceTool{
		entry:   Entry{Name: name, Description: description, ArgumentSchema: schema},
		handler: h,
	})
}

// ListCapabilities returns the container vocabulary.
func (p *WorkspaceProvider) ListCapabilities(context.Context) ([]Entry, error) {
	out := make([]Entry, len(p.tools))
	for i, t := range p.tools {
		out[i] = t.entry
	}
	return out, nil
}

// Invoke runs the named tool. Handler failures come back as error results so
// the caller sees them the way a remote server would report them.
func (p *WorkspaceProvider) Invoke(ctx context.Context, _ string, name string, args map[string]any) (*Result, error) {
	i, ok := p.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := p.tools[i].handler(ctx, args)
	if err != nil {
		return TextResult(err.Error(), true), nil
	}
	return res, nil
}

func (p *WorkspaceProvider) initialize(context.Context, map[string]any) (*Result, error) {
	if err := p.ws.Init(); err != nil {
		return nil, err
	}
	if p.initialized.Swap(true) {
		return TextResult("workspace already initialized at "+p.ws.Root(), false), nil
	}
	return TextResult("workspace initialized at "+p.ws.Root(), false), nil
}

func (p *WorkspaceProvider) ping(context.Context, map[string]any) (*Result, error) {
	return TextResult("pong", false), nil
}

func (p *WorkspaceProvider) writeFile(_ context.Context, args map[string]any) (*Result, error) {
	inner := Nested(args)
	path, _ := GetStringArg(inner, "path")
	text, ok := GetStringArg(inner, "text")
	if !ok {
		return nil, fmt.Errorf("text is required")
	}
	if err := p.ws.WriteFile(path, text); err != nil {
		return nil, err
	}
	return TextResult(fmt.Sprintf("wrote %d bytes to %s", len(text), path), false), nil
}

func (p *WorkspaceProvider) readFile(_ context.Context, args map[string]any) (*Result, error) {
	path, _ := GetStringArg(Nested(args), "path")
	data, err := p.ws.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if utf8.Valid(data) {
		return &Result{
			Content:    []Content{{Type: "text", Text: string(data)}},
			Structured: map[string]any{"path": path, "encoding": "utf-8", "content": string(data)},
		}, nil
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return &Result{
		Content:    []Content{{Type: "text", Text: encoded}},
		Structured: map[string]any{"path": path, "encoding": "base64", "content": encoded},
	}, nil
}

func (p *WorkspaceProvider) deleteFile(_ context.Context, args map[string]any) (*Result, error) {
	path, _ := GetStringArg(Nested(args), "path")
	if err := p.ws.DeleteFile(path); err != nil {
		return nil, err
	}
	return TextResult("deleted "+path, false), nil
}

func (p *WorkspaceProvider) exec(ctx context.Context, args map[string]any) (*Result, error) {
	inner := Nested(args)
	command, ok := GetCommandArg(inner, "args")
	if !ok || strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("args (the command line) is required")
	}
	var timeout time.Duration
	if ms, ok := GetIntArg(inner, "timeout"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	streamStderr, ok := GetBoolArg(inner, "streamStderr")
	if !ok {
		streamStderr = true
	}

	res, err := p.ws.Exec(ctx, command, timeout)
	if err != nil {
		return nil, err
	}
	out := res.Output(streamStderr)
	if res.TimedOut {
		out += fmt.Sprintf("\n[command timed out after %dms]", res.DurationMs)
	}
	return &Result{
		IsError:    res.TimedOut || res.ExitCode != 0,
		Content:    []Content{{Type: "text", Text: out}},
		Structured: res,
	}, nil
}

func (p *WorkspaceProvider) listFiles(context.Context, map[string]any) (*Result, error) {
	files, err := p.ws.ListFiles(6)
	if err != nil {
		return nil, err
	}
	return &Result{
		Content:    []Content{{Type: "text", Text: strings.Join(files, "\n")}},
		Structured: map[string]any{"files": files},
	}, nil
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

func objectSchema(props map[string]any, required []string) map[string]any {
	if props == nil {
		props = map[string]any{}
	}
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func nestedSchema(props map[string]any, required []string) map[string]any {
	return objectSchema(map[string]any{"args": objectSchema(props, required)}, []string{"args"})
}
