package log

import "strings"

// sensitiveKeywords are key substrings whose values must never reach the
// logs in full.
var sensitiveKeywords = []string{
	"password", "passwd", "pwd",
	"api_key", "apikey", "api-key",
	"token", "secret",
	"auth", "authorization",
	"credential",
}

// SanitizeField masks the value when the key looks like it carries a
// credential. Non-sensitive values pass through as-is.
func SanitizeField(key, value string) string {
	if value == "" {
		return value
	}

	lowerKey := strings.ToLower(key)
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(lowerKey, keyword) {
			return maskValue(value)
		}
	}
	return value
}

// maskValue keeps only the first and last 4 characters of long values;
// short values are masked almost entirely.
func maskValue(value string) string {
	if len(value) <= 8 {
		if len(value) <= 2 {
			return strings.Repeat("*", len(value))
		}
		return string(value[0]) + strings.Repeat("*", len(value)-2) + string(value[len(value)-1])
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}
