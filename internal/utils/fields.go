package utils

import (
	"encoding/json"
	"strconv"
	"strings"
)

// LookupString returns the first non-empty value among keys.
// Numeric ids are formatted without exponent so {"id": 42} yields "42".
func LookupString(m map[string]any, keys []string) string {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// LookupObject returns a nested JSON object stored under key
func LookupObject(m map[string]any, key string) map[string]any {
	nested, _ := m[key].(map[string]any)
	return nested
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case json.Number:
		return value.String()
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	default:
		return ""
	}
}
