package utils

import (
	"strings"
	"unicode"
)

// SanitizeJSON recursively cleans a decoded JSON value. Upstream payloads
// occasionally carry null bytes and stray control characters inside string
// values, which Datastore rejects on write; this walks the value and strips
// them. The input is treated as the tagged union produced by encoding/json:
// nil, string, []interface{}, map[string]interface{}, or a scalar (bool /
// float64), and the returned value has the same shape. The second return
// value is true if any subtree was modified, so the caller can skip a
// rewrite when the payload was already clean.
func SanitizeJSON(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case nil:
		return nil, false
	case string:
		cleaned := sanitizeString(v)
		return cleaned, cleaned != v
	case []interface{}:
		changed := false
		for i, elem := range v {
			cleanedElem, elemChanged := SanitizeJSON(elem)
			if elemChanged {
				v[i] = cleanedElem
				changed = true
			}
		}
		return v, changed
	case map[string]interface{}:
		changed := false
		for key, elem := range v {
			cleanedElem, elemChanged := SanitizeJSON(elem)
			if elemChanged {
				v[key] = cleanedElem
				changed = true
			}
		}
		return v, changed
	default:
		// Numbers and booleans carry nothing to sanitize.
		return v, false
	}
}

// sanitizeString removes null bytes and non-printable control characters,
// keeping ordinary whitespace (\n, \r, \t).
func sanitizeString(s string) string {
	if !strings.ContainsFunc(s, isDisallowed) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isDisallowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDisallowed(r rune) bool {
	if r == '\n' || r == '\r' || r == '\t' {
		return false
	}
	return r == 0 || unicode.IsControl(r) || r == unicode.ReplacementChar
}
