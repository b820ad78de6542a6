package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camberhq/camber/pkg/observability"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CAMBER_POSTGRES_URL", "postgres://localhost/camber_test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 365, cfg.Audit.RetentionDays)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("CAMBER_POSTGRES_URL", "postgres://localhost/camber_test")
	t.Setenv("CAMBER_PORT", "8888")
	t.Setenv("CAMBER_LOG_LEVEL", "debug")
	t.Setenv("CAMBER_READ_TIMEOUT", "45s")
	t.Setenv("CAMBER_AUDIT_RETENTION_DAYS", "90")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.Server.Port)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
}

func TestLoadConfig_FileOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camber.yaml")
	content := `
server:
  port: "9999"
database:
  url: postgres://filehost/camber
redis:
  url: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CAMBER_CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Server.Port)
	assert.Equal(t, "postgres://filehost/camber", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.URL)
}

func TestLoadConfig_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "camber.yaml")
	content := `
server:
  port: "9999"
database:
  url: postgres://filehost/camber
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	t.Setenv("CAMBER_CONFIG_FILE", path)
	t.Setenv("CAMBER_PORT", "7070")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing postgres URL",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "postgres URL is required",
		},
		{
			name:    "same ports",
			mutate:  func(c *Config) { c.Server.HealthPort = c.Server.Port },
			wantErr: "must be different",
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.Audit.RetentionDays = 0 },
			wantErr: "retention days",
		},
		{
			name: "otel enabled without endpoint",
			mutate: func(c *Config) {
				c.Observability.OTelEnabled = true
				c.Observability.OTelEndpoint = ""
			},
			wantErr: "OpenTelemetry endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Database.URL = "postgres://localhost/camber"
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
