package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The helpers below coerce values decoded from YAML (or set from Go code)
// into section field types. YAML integers arrive as int, JSON-style numbers as
// float64, so both are accepted.

func asString(key string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("invalid value type for %s: expected string, got %T", key, value)
	}
	return s, nil
}

func asBool(key string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
		}
		return b, nil
	}
	return false, fmt.Errorf("invalid value type for %s: expected bool, got %T", key, value)
}

func asInt(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid value type for %s: expected number, got %T", key, value)
}

// asDuration accepts Go duration strings ("30m") or a number of seconds.
func asDuration(key string, value any) (time.Duration, error) {
	switch v := value.(type) {
	case time.Duration:
		return v, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid duration string for %s: %w", key, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return 0, fmt.Errorf("invalid value type for %s: expected duration, got %T", key, value)
}

func asStringSlice(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("invalid value type for %s[%d]: expected string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("invalid value type for %s: expected list, got %T", key, value)
}

// parseEnvBool reads the usual boolean spellings. ok is false for anything
// else, including the empty string.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
