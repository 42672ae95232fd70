// Package config loads and validates the tagstream YAML configuration.
package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Default values.
const (
	DefaultBackend             = "gemini"
	DefaultGatewayPort         = 18790
	DefaultMaxOverloadAttempts = 3
	DefaultBaseDelay           = time.Second
	DefaultMaxRotations        = 32
	DefaultIRCHistory          = 20
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.Provider.Backend == "" {
		cfg.Provider.Backend = DefaultBackend
	}
	if cfg.Failover.ShortBlock == 0 {
		cfg.Failover.ShortBlock = time.Minute
	}
	if cfg.Failover.LongBlock == 0 {
		cfg.Failover.LongBlock = 24 * time.Hour
	}
	if cfg.Failover.PermissionBlock == 0 {
		cfg.Failover.PermissionBlock = 365 * 24 * time.Hour
	}
	if cfg.Engine.MaxOverloadAttempts == 0 {
		cfg.Engine.MaxOverloadAttempts = DefaultMaxOverloadAttempts
	}
	if cfg.Engine.BaseDelay == 0 {
		cfg.Engine.BaseDelay = DefaultBaseDelay
	}
	if cfg.Engine.MaxRotations == 0 {
		cfg.Engine.MaxRotations = DefaultMaxRotations
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "sqlite"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultGatewayPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Channels.IRC != nil {
		if cfg.Channels.IRC.Port == 0 {
			cfg.Channels.IRC.Port = 6667
			if cfg.Channels.IRC.UseTLS {
				cfg.Channels.IRC.Port = 6697
			}
		}
		if cfg.Channels.IRC.HistoryLimit == 0 {
			cfg.Channels.IRC.HistoryLimit = DefaultIRCHistory
		}
		if cfg.Channels.IRC.Scope == "" {
			cfg.Channels.IRC.Scope = "per-sender"
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}
