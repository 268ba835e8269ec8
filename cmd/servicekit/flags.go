package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPaths     []string
	LogLevel        string
	LogFormat       string
	Debug           bool
	HTTPAddr        string
	ShutdownTimeout time.Duration
	Watch           bool
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

// layerFlag collects repeated -config flags into ordered layers
type layerFlag struct {
	paths *[]string
	set   bool
}

func (f *layerFlag) String() string {
	if f.paths == nil {
		return ""
	}
	return fmt.Sprint(*f.paths)
}

func (f *layerFlag) Set(value string) error {
	if !f.set {
		*f.paths = nil
		f.set = true
	}
	*f.paths = append(*f.paths, value)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{
		ConfigPaths: []string{getEnv("SERVICEKIT_CONFIG", "configs/servicekit.yaml")},
	}

	layers := &layerFlag{paths: &cfg.ConfigPaths}
	fs.Var(layers, "config",
		"Configuration file, repeat to layer overrides (env: SERVICEKIT_CONFIG)")
	fs.Var(layers, "c",
		"Configuration file, repeat to layer overrides (env: SERVICEKIT_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("SERVICEKIT_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SERVICEKIT_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("SERVICEKIT_LOG_FORMAT", "json"),
		"Log format: json, text (env: SERVICEKIT_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("SERVICEKIT_DEBUG", false),
		"Enable debug mode (env: SERVICEKIT_DEBUG)")

	fs.StringVar(&cfg.HTTPAddr, "http-addr",
		getEnv("SERVICEKIT_HTTP_ADDR", ""),
		"Command surface address, overrides admin.http_addr (env: SERVICEKIT_HTTP_ADDR)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("SERVICEKIT_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: SERVICEKIT_SHUTDOWN_TIMEOUT)")

	fs.BoolVar(&cfg.Watch, "watch",
		getEnvBool("SERVICEKIT_WATCH", true),
		"Reload configuration when a file changes (env: SERVICEKIT_WATCH)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	fs.Usage = func() {
		printDetailedHelp(fs.Output(), fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	for _, path := range cfg.ConfigPaths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s", path)
		}
	}

	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

func printDetailedHelp(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - service runtime with a command surface

Usage: %s [options]

Options:
`, appName, appName)
	fs.SetOutput(w)
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run with a base config and a local override
  %s --config=configs/servicekit.yaml --config=configs/local.yaml

  # Run with debug logging
  %s --log-level=debug --log-format=text

  # Run with environment variables
  export SERVICEKIT_CONFIG=/etc/servicekit/config.yaml
  export SERVICEKIT_NATS_URLS=nats://localhost:4222
  %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, appName, appName, appName, appName, Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
