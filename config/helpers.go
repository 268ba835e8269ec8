package config

import "time"

// Safe accessors for attribute maps. Values decoded from JSON arrive as
// float64, values decoded from YAML as int, so both are accepted.

// GetString extracts a string value
func GetString(cfg map[string]any, key string, defaultVal string) string {
	if str, ok := cfg[key].(string); ok {
		return str
	}
	return defaultVal
}

// GetInt extracts an integer value
func GetInt(cfg map[string]any, key string, defaultVal int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

// GetFloat64 extracts a float value
func GetFloat64(cfg map[string]any, key string, defaultVal float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return defaultVal
}

// GetBool extracts a boolean value
func GetBool(cfg map[string]any, key string, defaultVal bool) bool {
	if b, ok := cfg[key].(bool); ok {
		return b
	}
	return defaultVal
}

// GetStringSlice extracts a string slice, converting []any when every element is a string
func GetStringSlice(cfg map[string]any, key string, defaultVal []string) []string {
	switch v := cfg[key].(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return defaultVal
			}
			result = append(result, str)
		}
		return result
	}
	return defaultVal
}

// GetDuration extracts a duration from a string like "250ms" or a number of seconds
func GetDuration(cfg map[string]any, key string, defaultVal time.Duration) time.Duration {
	v, ok := cfg[key]
	if !ok {
		return defaultVal
	}
	d, err := ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// HasKey reports whether key is present
func HasKey(cfg map[string]any, key string) bool {
	_, ok := cfg[key]
	return ok
}
