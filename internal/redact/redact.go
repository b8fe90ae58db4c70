// Package redact masks values whose keys name credentials before they are
// queued or persisted.
package redact

import "strings"

const Marker = "[REDACTED]"

var sensitiveFragments = []string{"password", "token", "secret"}

// IsSensitiveKey reports whether key contains password, token or secret,
// ignoring case.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, f := range sensitiveFragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Map returns a copy of in with sensitive values replaced by Marker. Nested
// maps and slices are walked. The input is never mutated and a nil map yields
// an empty one.
func Map(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsSensitiveKey(k) {
			out[k] = Marker
			continue
		}
		out[k] = value(v)
	}
	return out
}

// Strings is Map for flat string maps such as form values.
func Strings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if IsSensitiveKey(k) {
			out[k] = Marker
			continue
		}
		out[k] = v
	}
	return out
}

func value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Map(t)
	case map[string]string:
		return Strings(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = value(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = Map(item)
		}
		return out
	default:
		return v
	}
}
