// Package config loads the demo CLI's connection settings: which server to
// talk to, over which transport and NFS version, and which credential to
// present. Precedence is CLI flags, then NFSCLIENT_* environment variables,
// then a config file, then defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opennfsc/client/internal/rpcconn"
	"github.com/opennfsc/client/pkg/rpcgroup"
)

// Config holds everything a demo CLI needs to establish a ConnectionGroup
// and issue calls through it.
type Config struct {
	// Server is the NFS server's hostname or literal IP address.
	Server string `mapstructure:"server"`

	// Transport is "tcp" or "udp".
	Transport string `mapstructure:"transport"`

	// NFSVersion is 3 or 4.
	NFSVersion int `mapstructure:"nfs_version"`

	// MachineName, UID, GID populate the AUTH_UNIX credential presented on
	// every call.
	MachineName string `mapstructure:"machine_name"`
	UID         uint32 `mapstructure:"uid"`
	GID         uint32 `mapstructure:"gid"`

	// Timeout bounds each individual RPC call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults fills any zero-valued field with a usable default, run after
// Load unmarshals whatever the file/environment/flags provided.
func ApplyDefaults(cfg *Config) {
	if cfg.Transport == "" {
		cfg.Transport = "tcp"
	}
	if cfg.NFSVersion == 0 {
		cfg.NFSVersion = 3
	}
	if cfg.MachineName == "" {
		cfg.MachineName = "nfsclient"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = rpcgroup.DefaultTimeout
	}
}

// Validate rejects a Config that Load could not turn into a working
// ConnectionGroup.Key.
func Validate(cfg *Config) error {
	if cfg.Server == "" {
		return fmt.Errorf("config: server is required")
	}
	if cfg.Transport != "tcp" && cfg.Transport != "udp" {
		return fmt.Errorf("config: transport must be tcp or udp, got %q", cfg.Transport)
	}
	if cfg.NFSVersion != 3 && cfg.NFSVersion != 4 {
		return fmt.Errorf("config: nfs_version must be 3 or 4, got %d", cfg.NFSVersion)
	}
	return nil
}

// Load reads configPath (if non-empty) through viper, overlays NFSCLIENT_*
// environment variables, applies defaults, and validates the result. Flags
// bound onto v by the caller (via v.BindPFlag) take precedence over both.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	v.SetEnvPrefix("NFSCLIENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows, so bind each one to its
	// NFSCLIENT_* variable explicitly.
	for _, key := range []string{"server", "transport", "nfs_version", "machine_name", "uid", "gid", "timeout"} {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RPCTransport converts the string transport into an rpcconn.Transport, which
// Validate already guarantees is well-formed.
func (cfg *Config) RPCTransport() rpcconn.Transport {
	if cfg.Transport == "udp" {
		return rpcconn.UDP
	}
	return rpcconn.TCP
}

// GroupKey builds the rpcgroup.Key this Config resolves to.
func (cfg *Config) GroupKey() rpcgroup.Key {
	version := rpcgroup.NFSv3
	if cfg.NFSVersion == 4 {
		version = rpcgroup.NFSv4
	}
	return rpcgroup.Key{Server: cfg.Server, Transport: cfg.RPCTransport(), NFSVersion: version}
}
