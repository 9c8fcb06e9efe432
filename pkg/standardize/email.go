package standardize

import (
	"regexp"
	"strings"
)

// emailPattern matches an RFC-like local@domain token. The domain part
// requires at least one dot after the "@".
var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)+`)

// Email extracts the first email-looking token from value and lower-cases it.
func Email(value string) (string, bool) {
	v, ok := trimmed(value)
	if !ok {
		return "", false
	}

	match := emailPattern.FindString(v)
	if match == "" {
		return "", false
	}
	return strings.ToLower(match), true
}
