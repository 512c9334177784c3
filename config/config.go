// Package config loads conductor settings from a file, the environment and
// command-line flags.
package config

import (
	"strings"
	"time"

	"github.com/martinemde/conductor/capability"
	"github.com/martinemde/conductor/engine"
)

// Config is the root configuration.
type Config struct {
	Profile    string                    `json:"profile"              mapstructure:"profile"`
	Model      ModelConfig               `json:"model"                mapstructure:"model"`
	Session    SessionConfig             `json:"session"              mapstructure:"session"`
	Workspace  WorkspaceConfig           `json:"workspace"            mapstructure:"workspace"`
	Servers    []capability.ServerConfig `json:"servers,omitempty"    mapstructure:"servers"`
	Vocabulary engine.Vocabulary         `json:"vocabulary,omitempty" mapstructure:"vocabulary"`
	RunLog     RunLogConfig              `json:"runlog"               mapstructure:"runlog"`
	Log        LogConfig                 `json:"log"                  mapstructure:"log"`
}

// ModelConfig selects the model provider. Empty values fall back to the
// profile's defaults.
type ModelConfig struct {
	Provider    string   `json:"provider"              mapstructure:"provider"`
	Name        string   `json:"name,omitempty"        mapstructure:"name"`
	APIKey      string   `json:"api_key,omitempty"     mapstructure:"api_key"`
	Temperature *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"  mapstructure:"max_tokens"`
}

// SessionConfig overrides engine thresholds. Zero values keep the engine
// defaults.
type SessionConfig struct {
	MaxRounds             int           `json:"max_rounds"              mapstructure:"max_rounds"`
	RepeatTolerance       int           `json:"repeat_tolerance"        mapstructure:"repeat_tolerance"`
	WriteCap              int           `json:"write_cap"               mapstructure:"write_cap"`
	NoProgressRounds      int           `json:"no_progress_rounds"      mapstructure:"no_progress_rounds"`
	DuplicateWriteAbort   int           `json:"duplicate_write_abort"   mapstructure:"duplicate_write_abort"`
	DuplicateCommandAbort int           `json:"duplicate_command_abort" mapstructure:"duplicate_command_abort"`
	RetryAttempts         int           `json:"retry_attempts"          mapstructure:"retry_attempts"`
	RetryDelay            time.Duration `json:"retry_delay"             mapstructure:"retry_delay"`
	IncludeRawLog         bool          `json:"include_raw_log"         mapstructure:"include_raw_log"`
	RequiredAnswerField   string        `json:"required_answer_field"   mapstructure:"required_answer_field"`
}

// WorkspaceConfig controls the in-process workspace provider.
type WorkspaceConfig struct {
	Enabled        bool          `json:"enabled"         mapstructure:"enabled"`
	Root           string        `json:"root"            mapstructure:"root"`
	CommandTimeout time.Duration `json:"command_timeout" mapstructure:"command_timeout"`
}

// RunLogConfig controls the persistent session log.
type RunLogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path"    mapstructure:"path"`
}

// LogConfig controls logging.
type LogConfig struct {
	Debug bool `json:"debug" mapstructure:"debug"`
}

// Engine converts the session settings into an engine policy.
func (c Config) Engine() engine.Config {
	s := c.Session
	return engine.Config{
		MaxRounds:             s.MaxRounds,
		RepeatTolerance:       s.RepeatTolerance,
		WriteCap:              s.WriteCap,
		NoProgressRounds:      s.NoProgressRounds,
		DuplicateWriteAbort:   s.DuplicateWriteAbort,
		DuplicateCommandAbort: s.DuplicateCommandAbort,
		RetryAttempts:         s.RetryAttempts,
		RetryDelay:            s.RetryDelay,
		IncludeRawLog:         s.IncludeRawLog,
		RequiredAnswerField:   s.RequiredAnswerField,
		Vocabulary:            c.Vocabulary,
	}
}

// APIKeyEnv returns the conventional environment variable holding a
// provider's API key, e.g. OPENAI_API_KEY.
func APIKeyEnv(provider string) string {
	p := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(strings.TrimSpace(provider)))
	return p + "_API_KEY"
}
