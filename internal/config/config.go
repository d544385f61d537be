// Package config loads runtime configuration from file, environment and
// flags via viper.
//
// Sources in rising precedence: built-in defaults, clinisync.yaml in the
// data directory, CLINISYNC_* environment variables, then explicit flag
// bindings done by the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	// BackendURL is the clinic backend base URL, e.g. http://localhost:3001.
	BackendURL string `mapstructure:"backend_url"`

	// DataDir holds the document store, credential store and logs.
	DataDir string `mapstructure:"data_dir"`

	// RequestTimeout bounds each backend HTTP call.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ProbeInterval is how often the health endpoint is polled.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// SyncInterval is how often a periodic pass runs while online.
	SyncInterval time.Duration `mapstructure:"sync_interval"`

	// DashboardAddr is the local dashboard listen address.
	DashboardAddr string `mapstructure:"dashboard_addr"`

	// LogFile receives daemon logs. Empty means stderr only.
	LogFile string `mapstructure:"log_file"`
}

// DocumentsPath returns the document store location under DataDir.
func (c *Config) DocumentsPath() string { return filepath.Join(c.DataDir, "documents.db") }

// CredentialsPath returns the credential store location under DataDir.
func (c *Config) CredentialsPath() string { return filepath.Join(c.DataDir, "credentials.db") }

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".clinisync"
	}
	return filepath.Join(home, ".clinisync")
}

// New returns a viper instance with defaults and environment binding set
// up. The CLI binds its persistent flags onto this instance before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("backend_url", "http://localhost:3001")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("request_timeout", 15*time.Second)
	v.SetDefault("probe_interval", 10*time.Second)
	v.SetDefault("sync_interval", 2*time.Minute)
	v.SetDefault("dashboard_addr", "127.0.0.1:8765")
	v.SetDefault("log_file", "")

	v.SetEnvPrefix("CLINISYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and unmarshals the result. A missing
// config file is fine; a malformed one is not.
func Load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("clinisync")
	v.SetConfigType("yaml")
	v.AddConfigPath(v.GetString("data_dir"))
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if cfg.BackendURL == "" {
		return nil, fmt.Errorf("backend_url must not be empty")
	}
	return &cfg, nil
}
