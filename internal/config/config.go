// Package config handles CLI configuration loading.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the CLI configuration.
type Config struct {
	DefaultProvider string                    `yaml:"default_provider"`
	DefaultModel    string                    `yaml:"default_model"`
	Timeout         time.Duration             `yaml:"timeout,omitempty"`
	Retries         int                       `yaml:"retries,omitempty"`
	MetricsAddr     string                    `yaml:"metrics_addr,omitempty"`
	Guardrail       *Guardrail                `yaml:"guardrail,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

// Guardrail is the default guardrail applied to every request.
type Guardrail struct {
	ID      string `yaml:"id"`
	Version string `yaml:"version,omitempty"`
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv    string   `yaml:"api_key_env,omitempty"`
	BaseURL      string   `yaml:"base_url,omitempty"`
	FragmentPath string   `yaml:"fragment_path,omitempty"`
	// FallbackURLs are tried in order when BaseURL is throttled or unavailable.
	FallbackURLs []string `yaml:"fallback_urls,omitempty"`
}

// APIKey resolves the key from the environment. Empty when unset.
func (p ProviderConfig) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// DefaultConfigPath returns the default configuration file path for the current platform.
// - macOS/Linux: ~/.invoke/config.yaml
// - Windows: %USERPROFILE%\.invoke\config.yaml
func DefaultConfigPath() string {
	var homeDir string
	if runtime.GOOS == "windows" {
		homeDir = os.Getenv("USERPROFILE")
	} else {
		homeDir = os.Getenv("HOME")
	}
	if homeDir == "" {
		return "config.yaml"
	}
	return filepath.Join(homeDir, ".invoke", "config.yaml")
}

// Load reads the configuration at path.
// A missing file yields an empty config without error; a file that cannot be read or
// parsed is an error.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Providers: make(map[string]ProviderConfig),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	return cfg, nil
}

// Provider returns the config for the named provider, or the zero value.
func (c *Config) Provider(name string) ProviderConfig {
	if c == nil || c.Providers == nil {
		return ProviderConfig{}
	}
	return c.Providers[name]
}
