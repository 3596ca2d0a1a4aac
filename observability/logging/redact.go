package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in logs and sanitized configs.
const RedactedValue = "[REDACTED]"

// Keys that never carry secrets and may be logged verbatim.
var safeKeys = map[string]struct{}{
	"service":      {},
	"env":          {},
	"module":       {},
	"operation":    {},
	"operation_id": {},
	"effect":       {},
	"contract":     {},
	"endpoint":     {},
	"error":        {},
}

// IsSafeKey reports whether key is exempt from masking.
func IsSafeKey(key string) bool {
	_, ok := safeKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskValue returns RedactedValue for non-blank values. Blank values are
// returned unchanged so unset secrets stay visibly unset.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns value under key, masked unless the key is safe.
func MaskField(key, value string) slog.Attr {
	if IsSafeKey(key) {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

// MaskMap masks every value of m, keeping the keys. A nil map stays nil.
func MaskMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = MaskValue(v)
	}
	return out
}
