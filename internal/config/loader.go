package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/fleet/internal/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "fleet.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/fleet"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override (FLEET_POOL_MAX_CONNECTIONS, ...).
	EnvPrefix = "FLEET"
)

// Load reads config from the specified path. An empty path loads defaults
// plus environment overrides only.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if os.IsNotExist(err) {
				return nil, errors.WrapWithCode(err, errors.ErrConfig,
					"Config file not found",
					"Create "+ConfigFileName+" or point at one with --config")
			}
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Failed to read config file",
				"Check the file exists and is valid YAML")
		}
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. fleet.yaml in current directory
// 3. ~/.config/fleet/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}
	local := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		global := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(global); err == nil {
			return global, nil
		}
	}

	return "", nil
}

// LoadOrDefault finds and loads the config, falling back to defaults (with
// environment overrides) when no file exists.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// newViper creates a viper instance with defaults registered so that
// AutomaticEnv can see every key.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("pool.max_connections", d.Pool.MaxConnections)
	v.SetDefault("pool.idle_timeout", d.Pool.IdleTimeout)
	v.SetDefault("pool.connect_timeout", d.Pool.ConnectTimeout)
	v.SetDefault("pool.health_check_enabled", d.Pool.HealthCheckEnabled)
	v.SetDefault("pool.health_check_interval", d.Pool.HealthCheckInterval)
	v.SetDefault("pool.health_check_timeout", d.Pool.HealthCheckTimeout)
	v.SetDefault("discovery.cache_dir", d.Discovery.CacheDir)
	v.SetDefault("discovery.ttl", d.Discovery.TTL)
	v.SetDefault("discovery.max_depth", d.Discovery.MaxDepth)
	v.SetDefault("command_timeout", d.CommandTimeout)
	v.SetDefault("resolve_timeout", d.ResolveTimeout)
	v.SetDefault("allow_any_command", false)
	return v
}

// parseConfig converts viper config to our Config struct with defaults
// merged in, normalizes hosts and validates the result.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "the environment"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	Normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Normalize fills per-host defaults and expands local paths.
func Normalize(cfg *Config) {
	for i := range cfg.Hosts {
		h := &cfg.Hosts[i]
		if h.Protocol == "" {
			h.Protocol = ProtocolSSH
		}
		if h.Port == 0 && h.Protocol == ProtocolSSH {
			h.Port = DefaultSSHPort
		}
		h.KeyPath = ExpandTilde(h.KeyPath)
	}
	cfg.Discovery.CacheDir = ExpandTilde(cfg.Discovery.CacheDir)
}

// Marshal renders the effective config as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't render config",
			"This shouldn't happen - please report this bug!")
	}
	return out, nil
}
