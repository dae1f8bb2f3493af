package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars substitutes ${VAR} references with environment values.
func (l *Loader) expandEnvVars(s string) string {
	return l.envPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := l.envPattern.FindStringSubmatch(match)[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return match
	})
}

func (l *Loader) validate(cfg *Config) error {
	if cfg.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}

	if cfg.Composition.External.Enabled {
		if err := validEndpoint(cfg.Composition.External.Endpoint); err != nil {
			return fmt.Errorf("composition.external.endpoint: %w", err)
		}
	}
	if cfg.Policy.Endpoint != "" {
		if err := validEndpoint(cfg.Policy.Endpoint); err != nil {
			return fmt.Errorf("policy.endpoint: %w", err)
		}
	}
	if cfg.Usage.Endpoint != "" {
		if err := validEndpoint(cfg.Usage.Endpoint); err != nil {
			return fmt.Errorf("usage.endpoint: %w", err)
		}
	}

	if cfg.Checks.SchemaCacheSize < 0 {
		return fmt.Errorf("checks.schema_cache_size must not be negative")
	}
	if cfg.Checks.TopOperationsLimit <= 0 {
		return fmt.Errorf("checks.top_operations_limit must be positive")
	}

	return nil
}

func validEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint must be http or https, got %q", u.Scheme)
	}
	return nil
}
