package config

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Kronos-Integration/service-sub000/errors"
)

// Defaults applied by the Loader
const (
	DefaultHTTPAddr       = ":8080"
	DefaultCommandSubject = "servicekit.command"
	DefaultFactoryTimeout = 10 * time.Second
)

// Config represents the complete runtime configuration
type Config struct {
	Version    string                   `json:"version,omitempty"`
	Admin      AdminConfig              `json:"admin"`
	Resolution ResolutionConfig         `json:"resolution"`
	Services   map[string]ServiceConfig `json:"services"`
}

// AdminConfig configures the administrative command surface
type AdminConfig struct {
	HTTPAddr       string   `json:"http_addr,omitempty"`
	NATSURLs       []string `json:"nats_urls,omitempty"`
	CommandSubject string   `json:"command_subject,omitempty"`
}

// ResolutionConfig configures deferred dependency resolution
type ResolutionConfig struct {
	FactoryTimeout Duration `json:"factory_timeout,omitempty"`
}

// SafeConfig provides thread-safe access to configuration
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = &Config{}
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil check")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "SafeConfig", "Update", "config validation")
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	data, err := json.Marshal(c)
	if err != nil {
		copied := *c
		return &copied
	}

	var clone Config
	if err := json.Unmarshal(data, &clone); err != nil {
		copied := *c
		return &copied
	}
	return &clone
}

// Validate checks the configuration and fills service names from their keys
func (c *Config) Validate() error {
	if c.Resolution.FactoryTimeout < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("%w: resolution.factory_timeout must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "resolution validation")
	}

	if c.Admin.CommandSubject != "" && strings.ContainsAny(c.Admin.CommandSubject, " \t*>") {
		return errors.WrapInvalid(
			fmt.Errorf("%w: admin.command_subject %q is not a literal subject", errors.ErrInvalidConfig, c.Admin.CommandSubject),
			"Config", "Validate", "admin validation")
	}

	for key, svc := range c.Services {
		if key == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: service name cannot be empty", errors.ErrInvalidConfig),
				"Config", "Validate", "service validation")
		}
		if svc.Name == "" {
			svc.Name = key
		}
		if svc.Name != key {
			return errors.WrapInvalid(
				fmt.Errorf("%w: service %q declares name %q", errors.ErrInvalidConfig, key, svc.Name),
				"Config", "Validate", "service validation")
		}
		if err := svc.Validate(); err != nil {
			return errors.Wrap(err, "Config", "Validate", fmt.Sprintf("service %s validation", key))
		}
		c.Services[key] = svc
	}

	return nil
}

// ServiceList returns the service configs sorted by name
func (c *Config) ServiceList() []ServiceConfig {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	slices.Sort(names)

	list := make([]ServiceConfig, 0, len(names))
	for _, name := range names {
		svc := c.Services[name]
		if svc.Name == "" {
			svc.Name = name
		}
		list = append(list, svc)
	}
	return list
}

// FactoryTimeout returns the configured wait or the default
func (c *Config) FactoryTimeout() time.Duration {
	if c.Resolution.FactoryTimeout > 0 {
		return c.Resolution.FactoryTimeout.Duration()
	}
	return DefaultFactoryTimeout
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
