package config

import (
	"fmt"
	"sort"
	"time"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// DefaultSSHPort is used when a host does not set one.
const DefaultSSHPort = 22

// Protocol tags how a host is reached.
type Protocol string

const (
	ProtocolLocal Protocol = "local" // This machine; commands run without a shell
	ProtocolSSH   Protocol = "ssh"   // Remote shell over SSH
	ProtocolHTTP  Protocol = "http"  // Container-engine API only; no shell access
)

// Config represents the complete fleet.yaml configuration file.
type Config struct {
	Version         int             `yaml:"version" mapstructure:"version"`
	Hosts           []HostConfig    `yaml:"hosts" mapstructure:"hosts" validate:"dive"`
	Pool            PoolConfig      `yaml:"pool" mapstructure:"pool"`
	Discovery       DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	CommandTimeout  time.Duration   `yaml:"command_timeout" mapstructure:"command_timeout" validate:"gt=0"`
	ResolveTimeout  time.Duration   `yaml:"resolve_timeout" mapstructure:"resolve_timeout" validate:"gt=0"`
	AllowAnyCommand bool            `yaml:"allow_any_command" mapstructure:"allow_any_command"`
}

// HostConfig identifies one managed machine. It is immutable once loaded;
// the rest of the program only reads it.
type HostConfig struct {
	// Name is the unique logical key used on the command line and in the
	// discovery cache.
	Name string `yaml:"name" mapstructure:"name" validate:"required,max=253"`

	// Address is the network address or ~/.ssh/config alias.
	Address string `yaml:"address,omitempty" mapstructure:"address" validate:"required_unless=Protocol local,omitempty,max=253"`

	Port     int      `yaml:"port,omitempty" mapstructure:"port" validate:"min=0,max=65535"`
	Protocol Protocol `yaml:"protocol" mapstructure:"protocol" validate:"required,oneof=local ssh http"`
	User     string   `yaml:"user,omitempty" mapstructure:"user" validate:"omitempty,max=32"`

	// KeyPath is a private key passed straight to the transport.
	KeyPath string `yaml:"key_path,omitempty" mapstructure:"key_path"`

	// SearchPaths are filesystem roots scanned for compose projects.
	SearchPaths []string `yaml:"search_paths,omitempty" mapstructure:"search_paths" validate:"dive,startswith=/"`
}

// PoolConfig controls the per-host connection pool.
type PoolConfig struct {
	MaxConnections      int           `yaml:"max_connections" mapstructure:"max_connections" validate:"min=1,max=100"`
	IdleTimeout         time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gt=0"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"gt=0"`
	HealthCheckEnabled  bool          `yaml:"health_check_enabled" mapstructure:"health_check_enabled"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" mapstructure:"health_check_interval" validate:"gt=0"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout" mapstructure:"health_check_timeout" validate:"gt=0"`
}

// DiscoveryConfig controls the project discovery cache.
type DiscoveryConfig struct {
	CacheDir string        `yaml:"cache_dir" mapstructure:"cache_dir" validate:"required"`
	TTL      time.Duration `yaml:"ttl" mapstructure:"ttl" validate:"gt=0"`
	MaxDepth int           `yaml:"max_depth" mapstructure:"max_depth" validate:"min=1,max=10"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Hosts:   []HostConfig{},
		Pool: PoolConfig{
			MaxConnections:      5,
			IdleTimeout:         5 * time.Minute,
			ConnectTimeout:      10 * time.Second,
			HealthCheckEnabled:  true,
			HealthCheckInterval: 30 * time.Second,
			HealthCheckTimeout:  5 * time.Second,
		},
		Discovery: DiscoveryConfig{
			CacheDir: "~/.cache/fleet/discovery",
			TTL:      24 * time.Hour,
			MaxDepth: 3,
		},
		CommandTimeout: 30 * time.Second,
		ResolveTimeout: 30 * time.Second,
	}
}

// PoolKey identifies the connection pool for this host.
func (h HostConfig) PoolKey() string {
	return fmt.Sprintf("%s:%d", h.Name, h.EffectivePort())
}

// EffectivePort returns Port, or DefaultSSHPort when unset.
func (h HostConfig) EffectivePort() int {
	if h.Port == 0 {
		return DefaultSSHPort
	}
	return h.Port
}

// IsLocal reports whether commands for this host run on this machine.
func (h HostConfig) IsLocal() bool {
	if h.Protocol == ProtocolLocal {
		return true
	}
	switch h.Address {
	case "localhost", "127.0.0.1", "::1":
		return h.Protocol != ProtocolHTTP
	}
	return false
}

// HasShell reports whether the host can run shell commands at all.
func (h HostConfig) HasShell() bool {
	return h.Protocol != ProtocolHTTP
}

// Host returns the host with the given name.
func (c *Config) Host(name string) (HostConfig, bool) {
	for _, h := range c.Hosts {
		if h.Name == name {
			return h, true
		}
	}
	return HostConfig{}, false
}

// HostNames returns all configured host names, sorted.
func (c *Config) HostNames() []string {
	names := make([]string, 0, len(c.Hosts))
	for _, h := range c.Hosts {
		names = append(names, h.Name)
	}
	sort.Strings(names)
	return names
}
