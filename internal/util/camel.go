package util

import (
	"encoding/json"
	"strings"
)

// SnakeToCamel converts a snake_case key to camelCase. Keys without
// underscores pass through untouched, so already-camel payloads are stable.
func SnakeToCamel(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}

	parts := strings.Split(key, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// KeysToCamel recursively rewrites every object key in a decoded JSON value
// from snake_case to camelCase. Arrays and scalars are traversed in place.
func KeysToCamel(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			out[SnakeToCamel(k)] = KeysToCamel(child)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, child := range val {
			out[i] = KeysToCamel(child)
		}
		return out
	default:
		return v
	}
}

// DecodeCamel decodes raw JSON, camelCase-normalizes all keys, and unmarshals
// the result into target. Used for every upstream payload so no snake_case
// key survives into the domain models.
func DecodeCamel(raw []byte, target interface{}) error {
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}

	normalized, err := json.Marshal(KeysToCamel(generic))
	if err != nil {
		return err
	}

	return json.Unmarshal(normalized, target)
}
