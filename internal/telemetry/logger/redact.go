package logger

import (
	"log/slog"
	"strings"
)

// Value prefixes of secrets that may reach a log line: opaque node ids
// (authentication tokens and nonces), argon2 hashes and JWTs.
var sensitiveValuePrefixes = []string{
	"b=",
	"$argon2id$",
	"eyJ",
}

// Key fragments that mark an attribute as sensitive.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"bearer",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks attributes that look like secrets. A recognised
// value prefix wins over the key check so the prefix stays visible.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if prefix, ok := sensitivePrefix(v); ok {
			return slog.String(a.Key, maskValue(v, prefix))
		}
		if v != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// sensitivePrefix returns the prefix under which v is a secret. Opaque node
// ids outside namespace 0 carry an "ns=N;" qualifier, which is kept.
func sensitivePrefix(v string) (string, bool) {
	if strings.HasPrefix(v, "ns=") {
		if i := strings.Index(v, ";b="); i > 0 {
			return v[:i+3], true
		}
		return "", false
	}
	for _, p := range sensitiveValuePrefixes {
		if strings.HasPrefix(v, p) {
			return p, true
		}
	}
	return "", false
}

// maskValue keeps the prefix plus the first and last three characters of
// the body.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks value if it looks like a secret and returns it
// unchanged otherwise.
func RedactString(value string) string {
	if prefix, ok := sensitivePrefix(value); ok {
		return maskValue(value, prefix)
	}
	return value
}

// IsSensitiveKey reports whether a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}

// IsSensitiveValue reports whether value looks like a secret.
func IsSensitiveValue(value string) bool {
	_, ok := sensitivePrefix(value)
	return ok
}
