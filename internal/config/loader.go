package config

import (
	"errors"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} references.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} references with environment values. Unset
// variables are left as written.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSecrets resolves ${VAR} references in the fields that hold secrets,
// so keys can stay out of the config file.
func expandSecrets(cfg *Config) {
	for i, c := range cfg.Failover.Credentials {
		cfg.Failover.Credentials[i] = expandEnvVars(c)
	}
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	if cfg.Channels.IRC != nil {
		cfg.Channels.IRC.Password = expandEnvVars(cfg.Channels.IRC.Password)
	}
}

// Load reads the config file, applies defaults and TAGSTREAM_* overrides and
// expands secrets. A missing file yields the defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	expandSecrets(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Marshal renders cfg as YAML with every secret redacted.
func Marshal(cfg Config) ([]byte, error) {
	redacted := cfg
	redacted.Failover.Credentials = make([]string, len(cfg.Failover.Credentials))
	for i := range cfg.Failover.Credentials {
		redacted.Failover.Credentials[i] = redactedValue
	}
	if cfg.Gateway.Auth.Token != "" {
		redacted.Gateway.Auth.Token = redactedValue
	}
	if cfg.Channels.IRC != nil {
		irc := *cfg.Channels.IRC
		if irc.Password != "" {
			irc.Password = redactedValue
		}
		redacted.Channels.IRC = &irc
	}
	return yaml.Marshal(redacted)
}

const redactedValue = "<redacted>"

// applyEnvOverrides reads TAGSTREAM_* variables. List values are comma
// separated.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TAGSTREAM_PROVIDER"); v != "" {
		cfg.Provider.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("TAGSTREAM_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("TAGSTREAM_CREDENTIALS"); v != "" {
		cfg.Failover.Credentials = splitList(v)
	}
	if v := os.Getenv("TAGSTREAM_MODELS"); v != "" {
		cfg.Failover.Models = splitList(v)
	}
	if v := os.Getenv("TAGSTREAM_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("TAGSTREAM_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("TAGSTREAM_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("TAGSTREAM_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Token = v
	}
	if v := os.Getenv("TAGSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
