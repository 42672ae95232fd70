package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/soyeahso/tagstream/internal/hooks"
	"github.com/soyeahso/tagstream/internal/llm"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var reactionName = regexp.MustCompile(`^[A-Za-z_]+$`)

// Validate checks a Config for issues. It returns nil if the config is valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if !slices.Contains(llm.Backends, cfg.Provider.Backend) {
		add("provider.backend", "must be one of %v, got %q", llm.Backends, cfg.Provider.Backend)
	}
	if cfg.Provider.MaxTokens < 0 {
		add("provider.maxTokens", "must not be negative")
	}
	if t := cfg.Provider.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("provider.temperature", "must be between 0 and 2, got %g", *t)
	}

	if len(cfg.Failover.Credentials) == 0 {
		add("failover.credentials", "at least one credential is required")
	}
	for i, c := range cfg.Failover.Credentials {
		if strings.TrimSpace(c) == "" {
			add(fmt.Sprintf("failover.credentials[%d]", i), "credential is empty")
		} else if envVarPattern.MatchString(c) {
			add(fmt.Sprintf("failover.credentials[%d]", i), "references an unset environment variable")
		}
	}
	if len(cfg.Failover.Models) == 0 {
		add("failover.models", "at least one model is required")
	}
	for i, m := range cfg.Failover.Models {
		if strings.TrimSpace(m) == "" {
			add(fmt.Sprintf("failover.models[%d]", i), "model id is empty")
		}
	}
	for path, d := range map[string]int64{
		"failover.shortBlock":      int64(cfg.Failover.ShortBlock),
		"failover.longBlock":       int64(cfg.Failover.LongBlock),
		"failover.permissionBlock": int64(cfg.Failover.PermissionBlock),
		"engine.baseDelay":         int64(cfg.Engine.BaseDelay),
	} {
		if d < 0 {
			add(path, "duration must not be negative")
		}
	}
	if cfg.Engine.MaxOverloadAttempts < 0 {
		add("engine.maxOverloadAttempts", "must not be negative")
	}
	if cfg.Engine.MaxRotations < 0 {
		add("engine.maxRotations", "must not be negative")
	}

	for _, r := range cfg.Grammar.Reactions {
		if !reactionName.MatchString(r) {
			add("grammar.reactions", "invalid reaction name %q (letters and underscores only)", r)
		}
	}

	validDrivers := []string{"sqlite", "memory"}
	if !slices.Contains(validDrivers, cfg.Store.Driver) {
		add("store.driver", "must be one of %v, got %q", validDrivers, cfg.Store.Driver)
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	validBinds := []string{"loopback", "lan", "custom"}
	if !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	if cfg.Gateway.Bind != "loopback" && cfg.Gateway.Auth.Token == "" {
		add("gateway.auth.token", "required when the gateway is not bound to loopback")
	}

	if irc := cfg.Channels.IRC; irc != nil {
		if irc.Server == "" {
			add("channels.irc.server", "server is required")
		}
		if irc.Nick == "" {
			add("channels.irc.nick", "nick is required")
		}
		if irc.Port < 0 || irc.Port > 65535 {
			add("channels.irc.port", "port must be 0-65535, got %d", irc.Port)
		}
		if irc.SASL && irc.Password == "" {
			add("channels.irc.sasl", "SASL requires a password to be set")
		}
		if validScopes := []string{"per-sender", "global"}; !slices.Contains(validScopes, irc.Scope) {
			add("channels.irc.scope", "must be one of %v, got %q", validScopes, irc.Scope)
		}
		if irc.HistoryLimit < 0 {
			add("channels.irc.historyLimit", "must not be negative")
		}
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validStyles := []string{"pretty", "json"}
	if !slices.Contains(validStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validStyles, cfg.Logging.ConsoleStyle)
	}

	for _, ev := range cfg.Hooks.Log {
		if !hooks.Known(ev) {
			add("hooks.log", "unknown event %q", ev)
		}
	}

	// Map iteration above makes the order unstable.
	slices.SortStableFunc(issues, func(a, b ValidationIssue) int { return strings.Compare(a.Path, b.Path) })
	return issues
}
