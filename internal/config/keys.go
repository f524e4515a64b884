package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Store is a flat view of a settings document keyed by NormalizeKey, so
// "[watcher] watch_hidden" and "watcher.watch-hidden" address the same value.
// Accessors coerce strings, which is what the environment and flags supply.
type Store struct {
	values map[string]any
}

func NewStore() Store {
	return Store{values: make(map[string]any)}
}

// DecodeFile picks the format from the file extension. Anything that is not
// .yaml or .yml is read as TOML.
func DecodeFile(path string, data []byte) (Store, error) {
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Store{}, err
		}
	default:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return Store{}, err
		}
	}
	store := NewStore()
	store.merge("", raw)
	return store, nil
}

// Set stores value under key and reports the normalized key, or "" when key
// is blank and nothing was stored.
func (s Store) Set(key string, value any) string {
	normalized := NormalizeKey(key)
	if normalized != "" {
		s.values[normalized] = value
	}
	return normalized
}

// Keys returns the normalized keys present in the store.
func (s Store) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	return keys
}

func (s Store) lookup(key string) (any, bool) {
	value, ok := s.values[NormalizeKey(key)]
	return value, ok
}

func (s Store) String(key, fallback string) string {
	if text, ok := s.values[NormalizeKey(key)].(string); ok {
		return strings.TrimSpace(text)
	}
	return fallback
}

func (s Store) Int(key string, fallback int64) int64 {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	if text, isText := value.(string); isText {
		parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return fallback
		}
		return parsed
	}
	if number, ok := toInt64(value); ok {
		return number
	}
	return fallback
}

func (s Store) Float(key string, fallback float64) float64 {
	value, ok := s.lookup(key)
	if !ok {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return typed
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
			return parsed
		}
		return fallback
	}
	if number, ok := toInt64(value); ok {
		return float64(number)
	}
	return fallback
}

func (s Store) Bool(key string, fallback bool) bool {
	switch typed := s.values[NormalizeKey(key)].(type) {
	case bool:
		return typed
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
			return parsed
		}
	}
	return fallback
}

// List accepts a document list or a comma-separated string and drops blanks.
func (s Store) List(key string) []string {
	var items []string
	switch typed := s.values[NormalizeKey(key)].(type) {
	case []string:
		items = typed
	case []any:
		for _, item := range typed {
			items = append(items, fmt.Sprint(item))
		}
	case string:
		items = strings.Split(typed, ",")
	default:
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func NormalizeKey(key string) string {
	parts := strings.Split(strings.TrimSpace(key), ".")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(part)), "_", "-")
	}
	return strings.Trim(strings.Join(parts, "."), ".")
}

// merge flattens nested tables into dotted keys. TOML decodes tables as
// map[string]any and YAML may produce map[any]any.
func (s Store) merge(prefix string, raw map[string]any) {
	for key, value := range raw {
		if prefix != "" {
			key = prefix + "." + key
		}
		switch nested := value.(type) {
		case map[string]any:
			s.merge(key, nested)
		case map[any]any:
			converted := make(map[string]any, len(nested))
			for nestedKey, nestedValue := range nested {
				converted[fmt.Sprint(nestedKey)] = nestedValue
			}
			s.merge(key, converted)
		default:
			s.Set(key, value)
		}
	}
}

func toInt64(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case uint64:
		return int64(typed), true
	case float64:
		if typed == float64(int64(typed)) {
			return int64(typed), true
		}
	}
	return 0, false
}
