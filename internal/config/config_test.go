package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lawgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAndValidate(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "secret")

	path := writeConfig(t, `
listen_addr: ":9090"
db:
  driver: sqlite
  dsn: "file:lawgate.db"
lawbook:
  path: ./lawbook.yaml
  watch: true
auth:
  mode: header,jwt
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Lawbook.Watch)
	// Unset sections keep their defaults.
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Limits.Burst)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LAWGATE_LISTEN_ADDR", ":7000")
	t.Setenv("LAWGATE_LOG_JSON", "false")
	t.Setenv("LAWGATE_DB_DRIVER", "postgres")
	t.Setenv("LAWGATE_DB_DSN", "postgres://localhost/lawgate")

	cfg, err := Load(writeConfig(t, "listen_addr: \":8080\"\n"))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, "postgres", cfg.DB.Driver)
}

func TestLoadRejectsBadEnvBool(t *testing.T) {
	t.Setenv("LAWGATE_LAWBOOK_WATCH", "maybe")
	_, err := Load(writeConfig(t, "listen_addr: \":8080\"\n"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"missing listen addr": func(c *Config) { c.ListenAddr = "" },
		"unknown driver":      func(c *Config) { c.DB.Driver = "mysql" },
		"driver without dsn":  func(c *Config) { c.DB.Driver = "sqlite" },
		"watch without path":  func(c *Config) { c.Lawbook.Watch = true },
		"jwt without secret":  func(c *Config) { c.Auth.Mode = "jwt" },
		"unknown auth mode":   func(c *Config) { c.Auth.Mode = "oidc" },
		"no auth":             func(c *Config) { c.Auth.Mode = "" },
		"negative burst":      func(c *Config) { c.Limits.Burst = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("does-not-exist.yaml")
	require.Error(t, err)
}
