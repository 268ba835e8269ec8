package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Kronos-Integration/service-sub000/errors"
)

const (
	maxConfigSize = 10 << 20
	maxJSONDepth  = 100
	maxEnvVarLen  = 10000
	maxPathLen    = 4096
)

var allowedExtensions = []string{".json", ".yaml", ".yml"}

// validateConfigPath rejects empty, oversized and traversing paths and
// unknown file types
func validateConfigPath(path string) error {
	if path == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "validateConfigPath", "empty path check")
	}
	if len(path) > maxPathLen {
		return errors.WrapInvalid(fmt.Errorf("path too long: %d > %d", len(path), maxPathLen),
			"Config", "validateConfigPath", "length check")
	}

	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return errors.WrapInvalid(fmt.Errorf("path traversal not allowed: %s", path),
				"Config", "validateConfigPath", "traversal check")
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("unsupported config file type %q", ext),
		"Config", "validateConfigPath", "extension check")
}

// safeReadFile reads a config file after path and size validation
func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrConfigNotFound, path),
				"Config", "safeReadFile", "stat")
		}
		return nil, errors.Wrap(err, "Config", "safeReadFile", "stat")
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapInvalid(fmt.Errorf("not a regular file: %s", path),
			"Config", "safeReadFile", "file mode check")
	}
	if info.Size() > maxConfigSize {
		return nil, errors.WrapInvalid(fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize),
			"Config", "safeReadFile", "size check")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "safeReadFile", "read")
	}
	return data, nil
}

// validateEnvVar rejects oversized values and values with null bytes
func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// validateJSONDepth bounds nesting depth before decoding
func validateJSONDepth(data []byte) error {
	depth := 0
	inString, escaped := false, false

	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{' || b == '[':
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("%w: JSON nesting too deep: %d > %d", errors.ErrInvalidData, depth, maxJSONDepth)
			}
		case b == '}' || b == ']':
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced brackets", errors.ErrInvalidData)
			}
		}
	}

	if depth != 0 {
		return fmt.Errorf("%w: unclosed brackets (depth=%d)", errors.ErrInvalidData, depth)
	}
	return nil
}
