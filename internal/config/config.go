// Package config loads runtime configuration for the scand server and the
// remote worker agent. Values come from built-in defaults, an optional YAML
// file and SCAND_* environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration tree.
type Config struct {
	Server struct {
		// ListenAddr is the HTTP listen address, e.g. ":8080".
		ListenAddr string `mapstructure:"listen_addr"`

		// WorkerAPIKey is the shared secret remote workers must present in
		// the X-Worker-API-Key header.
		WorkerAPIKey string `mapstructure:"worker_api_key"`

		// RemoteWorkers disables local dispatch when true; pending scans
		// wait for a remote worker to claim them instead.
		RemoteWorkers bool `mapstructure:"remote_workers"`
	} `mapstructure:"server"`

	Database struct {
		// Path is the SQLite database file.
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	Scanner struct {
		// Interpreter is the executable used to run scanner modules.
		Interpreter string `mapstructure:"interpreter"`

		// ModulesDir is the directory holding the per-technique modules.
		ModulesDir string `mapstructure:"modules_dir"`

		// Timeout bounds a single-technique invocation.
		Timeout time.Duration `mapstructure:"timeout"`

		// EnumTimeout bounds enumeration-class invocations (subdomain_enum).
		EnumTimeout time.Duration `mapstructure:"enum_timeout"`

		// MaxRetries is how many attempts a failing invocation gets.
		MaxRetries int `mapstructure:"max_retries"`
	} `mapstructure:"scanner"`

	Worker struct {
		// ServerURL is the scand base URL the agent reports to.
		ServerURL string `mapstructure:"server_url"`

		// ID identifies this worker in job claims. Defaults to a
		// hostname-derived value when empty.
		ID string `mapstructure:"id"`

		// PollInterval is how often the agent asks for pending jobs.
		PollInterval time.Duration `mapstructure:"poll_interval"`
	} `mapstructure:"worker"`

	Logging struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

func defaultDBPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "scand", "scand.db")
}

// Load reads configuration. cfgFile may be empty, in which case only
// defaults and environment variables apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.worker_api_key", "")
	v.SetDefault("server.remote_workers", false)
	v.SetDefault("database.path", defaultDBPath())
	v.SetDefault("scanner.interpreter", "python3")
	v.SetDefault("scanner.modules_dir", "modules")
	v.SetDefault("scanner.timeout", 120*time.Second)
	v.SetDefault("scanner.enum_timeout", 180*time.Second)
	v.SetDefault("scanner.max_retries", 3)
	v.SetDefault("worker.server_url", "http://localhost:8080")
	v.SetDefault("worker.id", "")
	v.SetDefault("worker.poll_interval", 5*time.Second)
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix("SCAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}
