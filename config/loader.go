package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "SERVICEKIT"

// Loader handles configuration loading with layers and overrides
type Loader struct {
	layers    []string
	envPrefix string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPrefix: DefaultEnvPrefix,
	}
}

// AddLayer adds a configuration file layer. Later layers override earlier ones.
func (l *Loader) AddLayer(path string) {
	l.layers = append(l.layers, path)
}

// Layers returns the configured file layers
func (l *Loader) Layers() []string {
	return append([]string(nil), l.layers...)
}

// LoadFile loads configuration from a single file
func (l *Loader) LoadFile(path string) (*Config, error) {
	l.layers = []string{path}
	return l.Load()
}

// Load reads and deep-merges all layers over the defaults, then applies
// environment overrides
func (l *Loader) Load() (*Config, error) {
	merged, err := toMap(defaults())
	if err != nil {
		return nil, errors.WrapFatal(err, "Loader", "Load", "defaults encoding")
	}

	for _, path := range l.layers {
		raw, err := loadRaw(path)
		if err != nil {
			return nil, errors.Wrap(err, "Loader", "Load", fmt.Sprintf("layer %s", path))
		}
		merged = deepMergeMaps(merged, raw)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Loader", "Load", "merged config encoding")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "Load", "config decoding")
	}

	l.applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() *Config {
	return &Config{
		Admin: AdminConfig{
			HTTPAddr:       DefaultHTTPAddr,
			CommandSubject: DefaultCommandSubject,
		},
		Resolution: ResolutionConfig{
			FactoryTimeout: Duration(DefaultFactoryTimeout),
		},
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// loadRaw reads a JSON or YAML file into a generic map
func loadRaw(path string) (map[string]any, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "loadRaw", "yaml decoding")
		}
	default:
		if err := validateJSONDepth(data); err != nil {
			return nil, errors.WrapInvalid(err, "Loader", "loadRaw", "json structure check")
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err), "Loader", "loadRaw", "json decoding")
		}
	}

	if raw == nil {
		raw = make(map[string]any)
	}
	removeNilValues(raw)
	return raw, nil
}

// deepMergeMaps merges override into base. Nested maps merge; every other
// value in override replaces the base value.
func deepMergeMaps(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		baseMap, baseIsMap := result[k].(map[string]any)
		overrideMap, overrideIsMap := v.(map[string]any)
		if baseIsMap && overrideIsMap {
			result[k] = deepMergeMaps(baseMap, overrideMap)
			continue
		}
		result[k] = v
	}
	return result
}

func removeNilValues(m map[string]any) {
	for k, v := range m {
		if v == nil {
			delete(m, k)
		} else if nested, ok := v.(map[string]any); ok {
			removeNilValues(nested)
		}
	}
}

// applyEnvOverrides applies <prefix>_HTTP_ADDR, <prefix>_NATS_URLS,
// <prefix>_COMMAND_SUBJECT and <prefix>_FACTORY_TIMEOUT
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := l.env("HTTP_ADDR"); val != "" {
		cfg.Admin.HTTPAddr = val
	}
	if val := l.env("NATS_URLS"); val != "" {
		cfg.Admin.NATSURLs = strings.Split(val, ",")
	}
	if val := l.env("COMMAND_SUBJECT"); val != "" {
		cfg.Admin.CommandSubject = val
	}
	if val := l.env("FACTORY_TIMEOUT"); val != "" {
		if d, err := ParseDuration(val); err == nil {
			cfg.Resolution.FactoryTimeout = Duration(d)
		}
	}
}

func (l *Loader) env(name string) string {
	key := l.envPrefix + "_" + name
	val := os.Getenv(key)
	if err := validateEnvVar(key, val); err != nil {
		return ""
	}
	return val
}
