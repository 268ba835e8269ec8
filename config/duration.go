package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that reads "10s" style strings or plain
// numbers of seconds
type Duration time.Duration

// Duration returns the value as time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON reads a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseDuration(raw)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// ParseDuration converts a config value to a duration. Strings use
// time.ParseDuration with an added "d" unit for days; numbers are seconds.
func ParseDuration(v any) (time.Duration, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return value, nil
	case float64:
		return time.Duration(value * float64(time.Second)), nil
	case int:
		return time.Duration(value) * time.Second, nil
	case int64:
		return time.Duration(value) * time.Second, nil
	case string:
		if strings.HasSuffix(value, "d") {
			days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", value, err)
			}
			return time.Duration(days) * 24 * time.Hour, nil
		}
		if seconds, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(seconds * float64(time.Second)), nil
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", value, err)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("invalid duration type %T", v)
	}
}
