// Package config implements Configuration (C16): load and resolve the
// workbench's settings (API credentials, default and per-purpose models,
// auto-approve policy) from a YAML file overlaid with environment
// variables, per SPEC_FULL.md §4.15.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrMissingAPIKey is returned by Load when no API key is available from
// either the config file or the environment.
var ErrMissingAPIKey = errors.New("config: no API key configured (set apiKey in the config file or WORKBENCH_API_KEY)")

// Config is the resolved, effective configuration for one workbench
// process (SPEC_FULL.md §4.15).
type Config struct {
	APIKey              string            `yaml:"apiKey"`
	BaseURL             string            `yaml:"baseUrl"`
	DefaultModel        string            `yaml:"defaultModel"`
	TitleGeneratorModel string            `yaml:"titleGeneratorModel"`
	Models              map[string]string `yaml:"models"`
	AutoApproveEnabled  bool              `yaml:"autoApproveEnabled"`
	WorkspaceRoot       string            `yaml:"workspaceRoot"`
}

// Default returns the built-in defaults that Load starts from before the
// config file and environment overrides are applied.
func Default() Config {
	return Config{
		BaseURL:            "https://api.openai.com/v1",
		DefaultModel:       "gpt-4.1",
		AutoApproveEnabled: false,
		WorkspaceRoot:      ".",
	}
}

// Load reads path (if present), overlays environment variables, and
// validates that an API key resolved. WORKBENCH_CONFIG, if set, overrides
// path.
func Load(path string) (Config, error) {
	cfg := Default()

	if v := os.Getenv("WORKBENCH_CONFIG"); v != "" {
		path = v
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults + env
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if cfg.APIKey == "" {
		return cfg, ErrMissingAPIKey
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WORKBENCH_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("WORKBENCH_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("WORKBENCH_DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
}

// ModelFor resolves the model id for a named purpose (e.g. "title"),
// falling back to DefaultModel when no override is configured.
func (c *Config) ModelFor(purpose string) string {
	if m, ok := c.Models[purpose]; ok && m != "" {
		return m
	}
	return c.DefaultModel
}
