// Package textcodec provides the pure string predicates the wire
// protocol is built from: delimiter counting, bounded splitting and
// the name/number validity checks shared by every message handler.
package textcodec

import "strings"

// CountDelim returns the number of occurrences of delim in s.
func CountDelim(s string, delim byte) int {
	count := 0
	for i := 0; i < len(s); i++ {
		if s[i] == delim {
			count++
		}
	}
	return count
}

// SplitOn splits s on delim into up to n+1 fields. Missing trailing
// fields are returned as empty strings rather than omitted, so callers
// can always index the result up to n without a length check.
func SplitOn(s string, delim byte, n int) []string {
	fields := make([]string, n+1)
	rest := s
	for i := 0; i < n; i++ {
		idx := strings.IndexByte(rest, delim)
		if idx < 0 {
			fields[i] = rest
			rest = ""
			continue
		}
		fields[i] = rest[:idx]
		rest = rest[idx+1:]
	}
	fields[n] = rest
	return fields
}

// IsNonNegInteger reports whether s is a non-empty string of ASCII
// digits.
func IsNonNegInteger(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// invalidNameChars are the characters forbidden in a resource, depot
// or destination name.
const invalidNameChars = " \n\r:"

// ValidName reports whether s is non-empty and contains none of the
// characters forbidden by the wire protocol.
func ValidName(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, invalidNameChars)
}

// StripTrailingNewline removes a single trailing "\n" (and a
// preceding "\r", if present) from s.
func StripTrailingNewline(s string) string {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")
	return s
}

// HasPrefix reports whether s begins with the exact literal prefix,
// e.g. "Deliver:".
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(s, prefix)
}
