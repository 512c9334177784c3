package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServerConfig describes how to reach one MCP server. Exactly one of URL or
// Command is set.
type ServerConfig struct {
	Name    string            `mapstructure:"name" json:"name"`
	URL     string            `mapstructure:"url" json:"url,omitempty"`
	Command string            `mapstructure:"command" json:"command,omitempty"`
	Args    []string          `mapstructure:"args" json:"args,omitempty"`
	Env     map[string]string `mapstructure:"env" json:"env,omitempty"`
}

func (c ServerConfig) transport() (mcp.Transport, error) {
	switch {
	case c.URL != "" && c.Command != "":
		return nil, fmt.Errorf("server %q: set url or command, not both", c.Name)
	case c.URL != "":
		return &mcp.StreamableClientTransport{Endpoint: c.URL}, nil
	case c.Command != "":
		cmd := exec.Command(c.Command, c.Args...)
		cmd.Env = os.Environ()
		for k, v := range c.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	default:
		return nil, fmt.Errorf("server %q: url or command is required", c.Name)
	}
}

// MCPProvider exposes the tools of one MCP server. The connection is opened
// lazily by EnsureReady; concurrent callers share a single in-flight attempt.
type MCPProvider struct {
	cfg     ServerConfig
	version string
	logger  zerolog.Logger

	group   singleflight.Group
	ready   atomic.Bool
	mu      sync.RWMutex
	session *mcp.ClientSession
	tools   []Entry
}

// NewMCPProvider creates a provider for cfg. No connection is made until the
// first call that needs one.
func NewMCPProvider(cfg ServerConfig, version string, logger zerolog.Logger) *MCPProvider {
	return &MCPProvider{
		cfg:     cfg,
		version: version,
		logger:  logger.With().Str("server", cfg.Name).Logger(),
	}
}

// Name returns the configured server name.
func (p *MCPProvider) Name() string { return p.cfg.Name }

// EnsureReady connects and loads the tool list once. It is idempotent and
// safe for concurrent use; a failed attempt leaves the provider unready so
// the next call retries.
func (p *MCPProvider) EnsureReady(ctx context.Context) error {
	if p.ready.Load() {
		return nil
	}
	_, err, _ := p.group.Do("connect", func() (any, error) {
		if p.ready.Load() {
			return nil, nil
		}
		if err := p.connect(ctx); err != nil {
			return nil, err
		}
		p.ready.Store(true)
		return nil, nil
	})
	return err
}

func (p *MCPProvider) connect(ctx context.Context) error {
	transport, err := p.cfg.transport()
	if err != nil {
		return err
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "conductor", Version: p.version}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect to MCP server %q: %w", p.cfg.Name, err)
	}

	tools, err := listTools(ctx, session)
	if err != nil {
		_ = session.Close()
		return fmt.Errorf("list tools on %q: %w", p.cfg.Name, err)
	}

	p.mu.Lock()
	p.session = session
	p.tools = tools
	p.mu.Unlock()

	p.logger.Info().Int("tools", len(tools)).Msg("connected to MCP server")
	return nil
}

func listTools(ctx context.Context, session *mcp.ClientSession) ([]Entry, error) {
	var entries []Entry
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		for _, t := range res.Tools {
			entries = append(entries, Entry{
				Name:           t.Name,
				Description:    t.Description,
				ArgumentSchema: schemaMap(t.InputSchema),
			})
		}
		if res.NextCursor == "" {
			return entries, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// schemaMap normalizes whatever schema representation the SDK hands back
// into a plain JSON object.
func schemaMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// ListCapabilities returns the cached tool list, connecting first if needed.
func (p *MCPProvider) ListCapabilities(ctx context.Context) ([]Entry, error) {
	if err := p.EnsureReady(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Entry, len(p.tools))
	copy(out, p.tools)
	return out, nil
}

// Refresh reloads the tool list over the existing connection, reconnecting
// when the connection is gone.
func (p *MCPProvider) Refresh(ctx context.Context) error {
	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()
	if session == nil {
		p.ready.Store(false)
		return p.EnsureReady(ctx)
	}

	tools, err := listTools(ctx, session)
	if err != nil {
		p.logger.Warn().Err(err).Msg("tool refresh failed, reconnecting")
		p.dropSession()
		return p.EnsureReady(ctx)
	}
	p.mu.Lock()
	p.tools = tools
	p.mu.Unlock()
	return nil
}

// Invoke calls the named tool. The locator is ignored; it is how a Hub
// routed the call here.
func (p *MCPProvider) Invoke(ctx context.Context, _ string, name string, args map[string]any) (*Result, error) {
	if err := p.EnsureReady(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	session := p.session
	p.mu.RUnlock()
	if session == nil {
		return nil, fmt.Errorf("%w: MCP server %q is not connected", ErrInvalidLocator, p.cfg.Name)
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("call %s on %q: %w", name, p.cfg.Name, err)
	}
	return convertResult(res), nil
}

func convertResult(res *mcp.CallToolResult) *Result {
	out := &Result{IsError: res.IsError, Structured: res.StructuredContent}
	for _, c := range res.Content {
		switch v := c.(type) {
		case *mcp.TextContent:
			out.Content = append(out.Content, Content{Type: "text", Text: v.Text})
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out.Content = append(out.Content, Content{Type: "json", Body: string(raw)})
		}
	}
	return out
}

func (p *MCPProvider) dropSession() {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.mu.Unlock()
	p.ready.Store(false)
	if session != nil {
		_ = session.Close()
	}
}

// Close closes the server connection.
func (p *MCPProvider) Close() error {
	p.mu.Lock()
	session := p.session
	p.session = nil
	p.mu.Unlock()
	p.ready.Store(false)
	if session == nil {
		return nil
	}
	return session.Close()
}
