package config

import "time"

// Config is the top-level registry service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Composition CompositionConfig `yaml:"composition"`
	Policy      PolicyConfig      `yaml:"policy"`
	Usage       UsageConfig       `yaml:"usage"`
	Checks      ChecksConfig      `yaml:"checks"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// CompositionConfig configures the composition backends.
type CompositionConfig struct {
	External ExternalCompositionConfig `yaml:"external"`
	// NativeFederation enables the in-process federation merge instead of
	// delegating to the external composition service.
	NativeFederation bool `yaml:"native_federation"`
}

// ExternalCompositionConfig configures the external composition microservice.
type ExternalCompositionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	Retry    RetryConfig   `yaml:"retry"`
	Breaker  BreakerConfig `yaml:"breaker"`
}

// RetryConfig configures exponential backoff for outbound collaborator calls.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// BreakerConfig configures the circuit breaker for outbound collaborator calls.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// PolicyConfig configures the schema policy service.
type PolicyConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// UsageConfig configures the usage-statistics store endpoints.
type UsageConfig struct {
	Endpoint              string        `yaml:"endpoint"`
	AppDeploymentEndpoint string        `yaml:"app_deployment_endpoint"`
	Timeout               time.Duration `yaml:"timeout"`
}

// ChecksConfig tunes the diff stage.
type ChecksConfig struct {
	// FailOnDangerousChange treats Dangerous changes like Breaking ones.
	FailOnDangerousChange bool `yaml:"fail_on_dangerous_change"`
	// FilterNestedChanges deduplicates nested change records.
	FilterNestedChanges bool `yaml:"filter_nested_changes"`
	// SchemaCacheSize bounds the parsed-schema LRU in the diff engine.
	SchemaCacheSize int `yaml:"schema_cache_size"`
	// SchemaCacheTTL expires parsed-schema cache entries.
	SchemaCacheTTL time.Duration `yaml:"schema_cache_ttl"`
	// TopOperationsLimit bounds per-change usage samples fetched for observability.
	TopOperationsLimit int `yaml:"top_operations_limit"`
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8090",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Composition: CompositionConfig{
			External: ExternalCompositionConfig{
				Timeout: 30 * time.Second,
				Retry: RetryConfig{
					MaxRetries:      2,
					InitialInterval: 200 * time.Millisecond,
					MaxInterval:     2 * time.Second,
				},
				Breaker: BreakerConfig{
					Enabled:          true,
					FailureThreshold: 5,
					OpenTimeout:      30 * time.Second,
				},
			},
		},
		Policy: PolicyConfig{
			Timeout: 10 * time.Second,
		},
		Usage: UsageConfig{
			Timeout: 10 * time.Second,
		},
		Checks: ChecksConfig{
			FilterNestedChanges: true,
			SchemaCacheSize:     256,
			SchemaCacheTTL:      10 * time.Minute,
			TopOperationsLimit:  10,
		},
	}
}
