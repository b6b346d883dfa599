// Package config loads and validates vuramp run configurations.
//
// A run is described either by ramp stages or by a flat VU count and duration,
// plus the scenario steps each virtual user repeats. Values come from a YAML or
// JSON file read through viper and are overridden by command-line flags.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// lookupSetting returns the first candidate key present in settings. viper
// lowercases keys, so the lowercase form of each candidate is tried as well.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		if val, ok := settings[strings.ToLower(key)]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	if s, ok := value.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return cast.ToStringE(value)
}

// blank reports whether value is nil or an all-space string. Blank settings
// decode to the zero value.
func blank(value interface{}) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && strings.TrimSpace(s) == ""
}

// asInt accepts integers, whole floats (JSON numbers decode as float64) and
// decimal strings.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("expected whole number, got %v", v)
		}
	case string:
		if blank(v) {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	}
	return cast.ToIntE(value)
}

func asInt64(value interface{}) (int64, error) {
	if s, ok := value.(string); ok {
		if blank(s) {
			return 0, nil
		}
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}
	if f, ok := value.(float64); ok && f != float64(int64(f)) {
		return 0, fmt.Errorf("expected whole number, got %v", f)
	}
	return cast.ToInt64E(value)
}

func asFloat64(value interface{}) (float64, error) {
	if blank(value) {
		return 0, nil
	}
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	return cast.ToFloat64E(value)
}

func asBool(value interface{}) (bool, error) {
	if blank(value) {
		return false, nil
	}
	if s, ok := value.(string); ok {
		return strconv.ParseBool(strings.TrimSpace(s))
	}
	return cast.ToBoolE(value)
}

// asDuration accepts Go duration strings ("30s", "1m30s"), time.Duration values,
// and bare numbers, which are read as seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		if blank(v) {
			return 0, nil
		}
		return time.ParseDuration(strings.TrimSpace(v))
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

// asStringMap decodes header maps. Keys keep their case.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	result, err := cast.ToStringMapStringE(value)
	if err != nil {
		return nil, err
	}
	for k := range result {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("key cannot be empty")
		}
	}
	return result, nil
}

// asStringSlice accepts a list or a single string. A single string is one
// item; it is never split on spaces.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	}
	return cast.ToStringSliceE(value)
}

func asIntSlice(value interface{}) ([]int, error) {
	switch value.(type) {
	case nil:
		return nil, nil
	case int, int64, float64, string:
		n, err := asInt(value)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	result := make([]int, len(items))
	for i, item := range items {
		n, err := asInt(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		result[i] = n
	}
	return result, nil
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []int:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}

// toStringKeyMap converts a decoded map to string keys, lowercased and trimmed.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	raw, err := toStringKeyMapPreserveCase(value)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(raw))
	for key, val := range raw {
		result[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return result, nil
}

func toStringKeyMapPreserveCase(value interface{}) (map[string]interface{}, error) {
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return cast.ToStringMapE(value)
	case map[string]string:
		m, _ := cast.ToStringMapStringE(value)
		result := make(map[string]interface{}, len(m))
		for k, v := range m {
			result[k] = v
		}
		return result, nil
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
}
