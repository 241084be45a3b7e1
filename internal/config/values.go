package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Keys returns every configuration key, sorted
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue converts a command-line value to the type of key's default.
// Lists are comma separated; durations use time.ParseDuration syntax.
func ParseValue(key, raw string) (interface{}, error) {
	def, ok := defaults[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s", key)
	}

	switch d := def.(type) {
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid number for %s: %s", key, raw)
		}
		return n, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean for %s: %s (use: true or false)", key, raw)
		}
		return b, nil
	case []int:
		parts := strings.Split(raw, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("invalid list for %s: %s (use: 1,2,3)", key, raw)
			}
			out = append(out, n)
		}
		return out, nil
	case string:
		if _, err := time.ParseDuration(d); err == nil {
			if _, err := time.ParseDuration(raw); err != nil {
				return nil, fmt.Errorf("invalid duration for %s: %s", key, raw)
			}
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// Set parses and applies a value, then writes the config file
func (m *Manager) Set(key, raw string) error {
	value, err := ParseValue(key, raw)
	if err != nil {
		return err
	}
	if err := m.Override(key, value); err != nil {
		return err
	}
	return m.Save()
}
