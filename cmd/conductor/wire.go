package main

import (
	"fmt"

	"github.com/martinemde/conductor/capability"
	"github.com/martinemde/conductor/config"
	"github.com/martinemde/conductor/engine"
	"github.com/martinemde/conductor/llm"
	"github.com/martinemde/conductor/logging"
)

const workspaceLocator = "workspace"

// buildHub registers the local workspace, when enabled, and every configured
// MCP server. Server names become locators.
func buildHub(cfg config.Config) (*capability.Hub, error) {
	hub := capability.NewHub(logging.Component("capability"))
	if cfg.Workspace.Enabled {
		ws, err := capability.NewWorkspace(cfg.Workspace.Root, capability.WithCommandTimeout(cfg.Workspace.CommandTimeout))
		if err != nil {
			return nil, fmt.Errorf("open workspace: %w", err)
		}
		hub.Register(workspaceLocator, capability.NewWorkspaceProvider(ws))
	}
	for _, srv := range cfg.Servers {
		if srv.Name == workspaceLocator && cfg.Workspace.Enabled {
			_ = hub.Close()
			return nil, fmt.Errorf("server name %q is reserved for the workspace", srv.Name)
		}
		hub.Register(srv.Name, capability.NewMCPProvider(srv, version, logging.Component("mcp").With().Str("server", srv.Name).Logger()))
	}
	return hub, nil
}

// applyModel lets configured model settings override the profile's. A
// profile model only fits the provider it was written for, so switching
// provider without naming a model falls back to that provider's default.
func applyModel(p engine.Profile, m config.ModelConfig) engine.Profile {
	profileProvider := p.Provider
	if profileProvider == "" {
		profileProvider = config.DefaultProvider
	}
	switch {
	case m.Name != "":
		p.Model = m.Name
	case m.Provider != "" && m.Provider != profileProvider:
		p.Model = ""
	}
	// The client holds exactly one provider.
	p.Provider = ""
	if m.Temperature != nil {
		t := *m.Temperature
		p.Temperature = &t
	}
	if m.MaxTokens > 0 {
		n := m.MaxTokens
		p.MaxTokens = &n
	}
	return p
}

func buildModel(m config.ModelConfig, p engine.Profile) (engine.Model, error) {
	pc := llm.ProviderConfig{Name: m.Provider, APIKey: m.APIKey, Model: p.Model}
	if p.Temperature != nil {
		pc.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		pc.MaxTokens = *p.MaxTokens
	}
	client, err := llm.NewClientFromConfig(pc, logging.Component("llm"))
	if err != nil {
		return nil, fmt.Errorf("create model client: %w", err)
	}
	return engine.NewLLMModel(client), nil
}
