package flow

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/mohitkumar/autoflow/model"
)

// Number reads a numeric parameter. found is false when the key is absent.
func Number(cfg map[string]any, key string) (value float64, found bool, err error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, true, fmt.Errorf("parameter %s: %w", key, err)
	}
	return f, true, nil
}

func Int(cfg map[string]any, key string) (int, bool, error) {
	f, found, err := Number(cfg, key)
	if !found || err != nil {
		return 0, found, err
	}
	if f != math.Trunc(f) {
		return 0, true, fmt.Errorf("parameter %s: %v is not an integer", key, f)
	}
	return int(f), true, nil
}

// Duration accepts Go duration strings ("5m", "1s") or a number of seconds.
func Duration(cfg map[string]any, key string) (time.Duration, bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	if s, ok := v.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			if f, ferr := strconv.ParseFloat(strings.TrimSpace(s), 64); ferr == nil {
				return time.Duration(f * float64(time.Second)), true, nil
			}
			return 0, true, fmt.Errorf("parameter %s: %w", key, err)
		}
		return d, true, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, true, fmt.Errorf("parameter %s: %w", key, err)
	}
	return time.Duration(f * float64(time.Second)), true, nil
}

func String(cfg map[string]any, key string) (string, bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", true, fmt.Errorf("parameter %s: expected string, got %T", key, v)
	}
	return s, true, nil
}

func Bool(cfg map[string]any, key string) (bool, bool, error) {
	v, ok := cfg[key]
	if !ok || v == nil {
		return false, false, nil
	}
	switch b := v.(type) {
	case bool:
		return b, true, nil
	case string:
		parsed, err := strconv.ParseBool(b)
		if err != nil {
			return false, true, fmt.Errorf("parameter %s: %w", key, err)
		}
		return parsed, true, nil
	}
	return false, true, fmt.Errorf("parameter %s: expected bool, got %T", key, v)
}

func Severity(cfg map[string]any, key string) (model.Severity, bool, error) {
	s, found, err := String(cfg, key)
	if !found || err != nil {
		return "", found, err
	}
	sev, err := model.ParseSeverity(s)
	if err != nil {
		return "", true, fmt.Errorf("parameter %s: %w", key, err)
	}
	return sev, true, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
