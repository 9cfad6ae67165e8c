package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/nixcov/nixcov/pkg/errors"
)

// Response cache backends selectable in the config file.
const (
	backendFile  = "file"
	backendRedis = "redis"
	backendNone  = "none"
)

// Config mirrors the optional TOML config file. Zero values mean "not
// set": flags beat file values, and file values beat built-in defaults.
//
// Example:
//
//	caches = ["https://cache.nixos.org", "https://example.cachix.org"]
//	concurrency = 32
//	max_attempts = 5
//
//	[cache]
//	backend = "redis"
//	redis = "redis://localhost:6379/0"
//	ttl_days = 7
type Config struct {
	Caches      []string    `toml:"caches"`       // binary cache root URLs, queried in order
	Concurrency int         `toml:"concurrency"`  // parallel narinfo lookups
	MaxAttempts int         `toml:"max_attempts"` // attempts per root for transient failures
	Cache       CacheConfig `toml:"cache"`        // response cache selection
}

// CacheConfig selects and parameterizes the narinfo response cache.
type CacheConfig struct {
	Backend string `toml:"backend"`  // file (default), redis, or none
	Redis   string `toml:"redis"`    // redis URL, e.g. redis://localhost:6379/0
	TTLDays int    `toml:"ttl_days"` // response lifetime in days; 0 keeps the default
}

// TTL converts the configured lifetime to a duration. Zero means the
// fetch default applies.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

// loadConfig reads the TOML config at path. An empty path selects the
// default location and tolerates its absence; an explicitly given path
// must exist.
func loadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = defaultConfigPath(); err != nil {
			return &Config{}, nil
		}
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !explicit && os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "loading config %s", path)
	}

	for _, root := range cfg.Caches {
		if err := errors.ValidateCacheURL(root); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "config %s", path)
		}
	}
	return &cfg, nil
}

// defaultConfigPath returns the config location using XDG standard
// (~/.config/nixcov/config.toml).
func defaultConfigPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.toml"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName, "config.toml"), nil
}
