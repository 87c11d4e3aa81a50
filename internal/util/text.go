package util

import "strings"

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// SanitizePostgresTexts sanitizes every element and drops the ones that end
// up empty. A nil input yields an empty, non-nil slice so it can be bound to
// a NOT NULL text[] column.
func SanitizePostgresTexts(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(SanitizePostgresText(v))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
