package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string        `yaml:"listen_addr"`
	DB         DBConfig      `yaml:"db"`
	Lawbook    LawbookConfig `yaml:"lawbook"`
	Auth       AuthConfig    `yaml:"auth"`
	Log        LogConfig     `yaml:"log"`
	Limits     LimitsConfig  `yaml:"limits"`
}

// DBConfig selects the ledger backend. An empty driver keeps the ledger in
// memory.
type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LawbookConfig points at a lawbook file. When Path is set the server
// evaluates gates against the file instead of the ledger's active version.
type LawbookConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

type AuthConfig struct {
	Mode          string `yaml:"mode"`
	JWTSecret     string `yaml:"jwt_secret"`
	JWTIssuer     string `yaml:"jwt_issuer"`
	TrustedHeader string `yaml:"trusted_header"`
	DevToken      string `yaml:"dev_token"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type LimitsConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

func Default() Config {
	return Config{
		ListenAddr: ":8080",
		Auth:       AuthConfig{Mode: "header"},
		Log:        LogConfig{Level: "info", JSON: true},
		Limits:     LimitsConfig{RequestsPerSecond: 10, Burst: 20},
	}
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from LAWGATE_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("LAWGATE_LISTEN_ADDR", &c.ListenAddr)
	str("LAWGATE_DB_DRIVER", &c.DB.Driver)
	str("LAWGATE_DB_DSN", &c.DB.DSN)
	str("LAWGATE_LAWBOOK_PATH", &c.Lawbook.Path)
	str("LAWGATE_AUTH_MODE", &c.Auth.Mode)
	str("LAWGATE_JWT_SECRET", &c.Auth.JWTSecret)
	str("LAWGATE_DEV_TOKEN", &c.Auth.DevToken)
	str("LAWGATE_LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("LAWGATE_LAWBOOK_WATCH"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LAWGATE_LAWBOOK_WATCH: %w", err)
		}
		c.Lawbook.Watch = b
	}
	if v, ok := lookup("LAWGATE_LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LAWGATE_LOG_JSON: %w", err)
		}
		c.Log.JSON = b
	}
	return nil
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.DB.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite or postgres, got %q", c.DB.Driver)
	}
	if c.DB.Driver != "" && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is set")
	}

	if c.Lawbook.Watch && c.Lawbook.Path == "" {
		return fmt.Errorf("lawbook.path is required when lawbook.watch=true")
	}

	for _, mode := range strings.Split(c.Auth.Mode, ",") {
		switch strings.TrimSpace(mode) {
		case "", "header":
		case "jwt":
			if c.Auth.JWTSecret == "" {
				return fmt.Errorf("auth.jwt_secret is required when auth.mode includes jwt")
			}
		default:
			return fmt.Errorf("auth.mode: unknown mode %q", mode)
		}
	}
	if strings.TrimSpace(c.Auth.Mode) == "" && c.Auth.DevToken == "" {
		return fmt.Errorf("auth.mode or auth.dev_token is required")
	}

	if c.Limits.RequestsPerSecond < 0 || c.Limits.Burst < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	return nil
}
