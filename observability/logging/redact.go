package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "[REDACTED]"

// Keys that MaskField passes through untouched. Everything else it masks.
var allowlisted = map[string]struct{}{
	"service":   {},
	"env":       {},
	"error":     {},
	"reason":    {},
	"component": {},
	"operation": {},
	"campaign":  {},
	"event":     {},
	"route":     {},
	"status":    {},
	"backend":   {},
}

// Keys the handler always masks, whichever helper produced the attribute.
var secretKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"jwt_secret":    {},
	"secret":        {},
	"passphrase":    {},
	"password":      {},
	"dsn":           {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsAllowlisted reports whether MaskField emits key verbatim.
func IsAllowlisted(key string) bool {
	_, ok := allowlisted[normalizeKey(key)]
	return ok
}

func isSecret(key string) bool {
	_, ok := secretKeys[normalizeKey(key)]
	return ok
}

// ShortAddress keeps the bech32 prefix and the last six characters so log
// lines stay correlatable without printing the whole account.
func ShortAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return ""
	}
	sep := strings.LastIndex(trimmed, "1")
	if sep <= 0 || len(trimmed)-sep <= 7 {
		return RedactedValue
	}
	return trimmed[:sep+1] + "..." + trimmed[len(trimmed)-6:]
}

// MaskField returns key=value for allowlisted keys and key=[REDACTED]
// otherwise. Empty values are kept as is.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactSecrets is applied by the handler to every attribute.
func redactSecrets(attr slog.Attr) slog.Attr {
	if isSecret(attr.Key) && attr.Value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, RedactedValue)
	}
	return attr
}
