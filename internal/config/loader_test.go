package config

import (
	"os"
	"testing"
	"time"
)

func TestLoaderParse(t *testing.T) {
	yaml := `
server:
  addr: ":9090"
  read_timeout: 10s
  write_timeout: 20s

composition:
  external:
    enabled: true
    endpoint: http://composition:3069
    timeout: 5s

usage:
  endpoint: http://usage:4001

checks:
  fail_on_dangerous_change: true
  schema_cache_size: 64
`

	loader := NewLoader()
	cfg, err := loader.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", cfg.Server.Addr)
	}

	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read_timeout 10s, got %v", cfg.Server.ReadTimeout)
	}

	if !cfg.Composition.External.Enabled {
		t.Error("expected external composition enabled")
	}

	if cfg.Composition.External.Timeout != 5*time.Second {
		t.Errorf("expected composition timeout 5s, got %v", cfg.Composition.External.Timeout)
	}

	if cfg.Usage.Endpoint != "http://usage:4001" {
		t.Errorf("expected usage endpoint, got %s", cfg.Usage.Endpoint)
	}

	if !cfg.Checks.FailOnDangerousChange {
		t.Error("expected fail_on_dangerous_change true")
	}

	if cfg.Checks.SchemaCacheSize != 64 {
		t.Errorf("expected schema_cache_size 64, got %d", cfg.Checks.SchemaCacheSize)
	}

	// Unset keys keep their defaults.
	if cfg.Checks.TopOperationsLimit != 10 {
		t.Errorf("expected default top_operations_limit 10, got %d", cfg.Checks.TopOperationsLimit)
	}
}

func TestLoaderEnvExpansion(t *testing.T) {
	os.Setenv("TEST_ADDR", ":7777")
	os.Setenv("TEST_POLICY_ENDPOINT", "http://policy:4010")
	defer os.Unsetenv("TEST_ADDR")
	defer os.Unsetenv("TEST_POLICY_ENDPOINT")

	yaml := `
server:
  addr: "${TEST_ADDR}"

policy:
  endpoint: ${TEST_POLICY_ENDPOINT}
`

	loader := NewLoader()
	cfg, err := loader.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Addr != ":7777" {
		t.Errorf("expected addr :7777 from env, got %s", cfg.Server.Addr)
	}

	if cfg.Policy.Endpoint != "http://policy:4010" {
		t.Errorf("expected policy endpoint from env, got %s", cfg.Policy.Endpoint)
	}
}

func TestLoaderEnvExpansionUnsetKeepsReference(t *testing.T) {
	os.Unsetenv("TEST_UNSET_VAR")

	yaml := `
server:
  addr: ":8090"
policy:
  endpoint: "http://${TEST_UNSET_VAR}:4010"
`

	loader := NewLoader()
	if _, err := loader.Parse([]byte(yaml)); err == nil {
		t.Error("expected validation to reject the unexpanded endpoint")
	}
}

func TestLoaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid minimal config",
			yaml: `
server:
  addr: ":8090"
`,
			wantErr: false,
		},
		{
			name: "empty addr",
			yaml: `
server:
  addr: ""
`,
			wantErr: true,
		},
		{
			name: "external composition enabled without endpoint",
			yaml: `
server:
  addr: ":8090"
composition:
  external:
    enabled: true
`,
			wantErr: true,
		},
		{
			name: "external composition disabled without endpoint",
			yaml: `
server:
  addr: ":8090"
composition:
  external:
    enabled: false
`,
			wantErr: false,
		},
		{
			name: "policy endpoint with bad scheme",
			yaml: `
server:
  addr: ":8090"
policy:
  endpoint: ftp://policy:4010
`,
			wantErr: true,
		},
		{
			name: "usage endpoint https",
			yaml: `
server:
  addr: ":8090"
usage:
  endpoint: https://usage.internal
`,
			wantErr: false,
		},
		{
			name: "negative schema cache size",
			yaml: `
server:
  addr: ":8090"
checks:
  schema_cache_size: -1
`,
			wantErr: true,
		},
		{
			name: "zero top operations limit",
			yaml: `
server:
  addr: ":8090"
checks:
  top_operations_limit: 0
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := NewLoader()
			_, err := loader.Parse([]byte(tt.yaml))
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Addr != ":8090" {
		t.Errorf("expected default addr :8090, got %s", cfg.Server.Addr)
	}

	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected default read_timeout 30s, got %v", cfg.Server.ReadTimeout)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Log.Level)
	}

	if cfg.Composition.External.Enabled {
		t.Error("expected external composition disabled by default")
	}

	if !cfg.Composition.External.Breaker.Enabled {
		t.Error("expected circuit breaker enabled by default")
	}

	if cfg.Checks.SchemaCacheSize != 256 {
		t.Errorf("expected default schema_cache_size 256, got %d", cfg.Checks.SchemaCacheSize)
	}

	if !cfg.Checks.FilterNestedChanges {
		t.Error("expected filter_nested_changes on by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load("testdata/does-not-exist.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
