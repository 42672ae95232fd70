package config

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultBaseDir = ".tagstream"

// Paths holds the resolved filesystem locations.
type Paths struct {
	Base   string // ~/.tagstream
	Config string // ~/.tagstream/config.yaml
	Data   string // ~/.tagstream/data
	Logs   string // ~/.tagstream/logs
}

// ResolvePaths computes the standard paths. TAGSTREAM_HOME overrides the
// base directory and TAGSTREAM_CONFIG_PATH the config file.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("TAGSTREAM_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	p := Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}
	if v := os.Getenv("TAGSTREAM_CONFIG_PATH"); v != "" {
		p.Config = v
	}
	return p, nil
}

// EnsureDirs creates the standard directories.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// StorePath returns the database path cfg selects, defaulting to the data
// directory.
func (p Paths) StorePath(cfg StoreConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return filepath.Join(p.Data, "tagstream.db")
}

// ParseConfigPath splits a dot-separated key such as "gateway.port".
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment: " + raw}
		}
	}
	return parts, nil
}

// GetValueAtPath walks nested maps along path.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	var cur any = root
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// SetValueAtPath sets value at path, replacing any non-map intermediate.
func SetValueAtPath(root map[string]any, path []string, value any) {
	cur := root
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}
