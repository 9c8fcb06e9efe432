package standardize

import (
	"regexp"
	"strings"
)

var (
	// urlHostPattern captures the host portion of a full URL; the path,
	// query and fragment are discarded.
	urlHostPattern = regexp.MustCompile(`(?i)https?://([^/\s?#]+)`)

	// bareDomainPattern matches a domain-looking token: dotted labels
	// ending in an alphabetic TLD of two or more characters.
	bareDomainPattern = regexp.MustCompile(`(?i)(?:[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?\.)+[a-z]{2,}`)
)

// WebDomain extracts a full URL or a bare domain-looking token from value
// and normalizes it to the bare lowercased host.
//
// The scheme is never reproduced on output: downstream key matching
// depends on scheme-independent equality, so "http://example.com/x" and
// "https://EXAMPLE.com" both canonicalize to "example.com".
func WebDomain(value string) (string, bool) {
	v, ok := trimmed(value)
	if !ok {
		return "", false
	}

	candidate := v
	if m := urlHostPattern.FindStringSubmatch(v); m != nil {
		candidate = m[1]
		// Drop userinfo and port; only the bare host is retained.
		if at := strings.LastIndex(candidate, "@"); at >= 0 {
			candidate = candidate[at+1:]
		}
		if colon := strings.Index(candidate, ":"); colon >= 0 {
			candidate = candidate[:colon]
		}
	}

	domain := bareDomainPattern.FindString(candidate)
	if domain == "" {
		return "", false
	}
	return strings.ToLower(strings.TrimSuffix(domain, ".")), true
}
