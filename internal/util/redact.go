package util

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>".
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// key=value or key: value forms of API keys and passwords in error strings.
	secretKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|linkedin[_-]?password|password|passwd)\b\s*[:=]\s*[^\s"'&]+`)

	// Request URLs carry the API key as a query parameter.
	keyParamRe = regexp.MustCompile(`([?&]key=)[^\s"'&]+`)

	// user:pass@ inside URLs.
	userinfoRe = regexp.MustCompile(`(://)[^/\s:@]+:[^/\s@]+@`)
)

// RedactSecrets removes obvious secret-bearing substrings from error/log strings.
// It is safe to call on any message, including upstream error text.
func RedactSecrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = secretKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = keyParamRe.ReplaceAllString(out, "${1}<redacted>")
	out = userinfoRe.ReplaceAllString(out, "${1}<redacted>@")
	return strings.TrimSpace(out)
}

// RedactValues replaces every occurrence of the given literal secrets in s.
// Empty values are ignored.
func RedactValues(s string, secrets ...string) string {
	for _, v := range secrets {
		if strings.TrimSpace(v) == "" {
			continue
		}
		s = strings.ReplaceAll(s, v, "<redacted>")
	}
	return s
}
