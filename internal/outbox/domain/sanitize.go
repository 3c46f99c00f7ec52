package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxErrorLength       = 512
	errorTruncatedSuffix = "... (truncated)"
	redactedValue        = "[REDACTED]"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Error messages end up in last_error and in task payloads, so credentials from DSNs
// and user emails from payload echoes are stripped.
var redactions = []redaction{
	{
		pattern:     regexp.MustCompile(`(?i)\b([a-z][a-z0-9+.-]*://[^:\s/]+):([^@\s]+)@`),
		replacement: `$1:` + redactedValue + `@`,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b(password|secret|token)\s*[:=]\s*([^\s,;]+)`),
		replacement: `$1=` + redactedValue,
	},
	{
		pattern:     regexp.MustCompile(`(?i)\b[A-Z0-9._%+\-]+@[A-Z0-9.\-]+\.[A-Z]{2,}\b`),
		replacement: redactedValue,
	},
}

// SanitizeError redacts sensitive values from err and bounds its length for storage.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeErrorMessage(err.Error())
}

// SanitizeErrorMessage redacts sensitive values from msg and bounds its length.
func SanitizeErrorMessage(msg string) string {
	out := strings.TrimSpace(msg)
	for _, r := range redactions {
		out = r.pattern.ReplaceAllString(out, r.replacement)
	}

	if len(out) <= maxErrorLength {
		return out
	}

	cut := maxErrorLength - len(errorTruncatedSuffix)
	for cut > 0 && !utf8.RuneStart(out[cut]) {
		cut--
	}
	return out[:cut] + errorTruncatedSuffix
}
