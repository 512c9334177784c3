package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CONDUCTOR_PROFILE or
// CONDUCTOR_SESSION_MAX_ROUNDS.
const EnvPrefix = "CONDUCTOR"

// DefaultName is the config file base name searched for when no path is
// given.
const DefaultName = "conductor"

// DefaultProvider is the model provider used when none is configured.
const DefaultProvider = "openai"

// envKeys are the scalar keys that may be set from the environment.
var envKeys = []string{
	"profile",
	"model.provider", "model.name", "model.api_key", "model.temperature", "model.max_tokens",
	"session.max_rounds", "session.repeat_tolerance", "session.write_cap", "session.no_progress_rounds",
	"session.duplicate_write_abort", "session.duplicate_command_abort", "session.retry_attempts",
	"session.retry_delay", "session.include_raw_log", "session.required_answer_field",
	"workspace.enabled", "workspace.root", "workspace.command_timeout",
	"vocabulary.archive_path",
	"runlog.enabled", "runlog.path",
	"log.debug",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("profile", "coder")
	v.SetDefault("model.provider", DefaultProvider)
	v.SetDefault("workspace.enabled", true)
	v.SetDefault("workspace.root", ".")
	v.SetDefault("workspace.command_timeout", "2m")
	v.SetDefault("runlog.enabled", true)
	v.SetDefault("runlog.path", filepath.Join(".conductor", "runs.db"))
	v.SetDefault("log.debug", false)
}

// LoadDotEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads configuration into v and decodes it. An explicit path must
// exist; without one, conductor.{yaml,json,toml} is searched for in the
// working directory and $HOME/.config/conductor, and defaults apply when
// none is found. The decoded result is validated against the schema.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName(DefaultName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", DefaultName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv(APIKeyEnv(cfg.Model.Provider))
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks a decoded configuration against the schema.
func Validate(cfg Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	var settings map[string]any
	if err := json.Unmarshal(raw, &settings); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return ValidateSettings(settings)
}
