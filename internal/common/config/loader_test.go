package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeConfig(t, `
backend:
  resume_url: http://localhost:8000/api/resume
  auth_url: http://localhost:8000/api/auth
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Persistence.Driver)
	assert.Equal(t, "http://localhost:8000/api/users", cfg.Backend.UsersURL)
	assert.Equal(t, int64(200000000), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{".pdf"}, cfg.Upload.AllowedExtensions)
	assert.Equal(t, 30000, cfg.Session.CheckInterval)
	assert.Equal(t, 5, cfg.Session.WarningMinutes)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_RESUME_HOST", "extract.internal")
	path := writeConfig(t, `
backend:
  resume_url: http://${TEST_RESUME_HOST}/api/resume
  auth_url: http://auth.internal/api/auth
persistence:
  driver: redis
database:
  redis:
    address: localhost:6379
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://extract.internal/api/resume", cfg.Backend.ResumeURL)
	assert.Equal(t, DriverRedis, cfg.Persistence.Driver)
}

func TestValidateConfig(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Backend: BackendConfig{ResumeURL: "http://r", AuthURL: "http://a"}}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid memory", func(*Config) {}, ""},
		{"missing resume url", func(c *Config) { c.Backend.ResumeURL = "" }, "backend.resume_url"},
		{"missing auth url", func(c *Config) { c.Backend.AuthURL = "" }, "backend.auth_url"},
		{"redis without address", func(c *Config) { c.Persistence.Driver = DriverRedis }, "database.redis.address"},
		{"postgres without host", func(c *Config) { c.Persistence.Driver = DriverPostgres }, "database.postgres.host"},
		{"unknown driver", func(c *Config) { c.Persistence.Driver = "etcd" }, "not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetDuration(t *testing.T) {
	assert.Equal(t, 30*time.Second, GetDuration(30000))
}
