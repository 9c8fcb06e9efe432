package standardize

import (
	"regexp"
)

// Phone extraction patterns, in priority order: explicit international
// numbers first, then common local/separator-heavy forms, then bare digit
// runs. The first pattern whose match carries at least ten digits wins.
var phonePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\+\d[\d\s().-]{7,}\d`),
	regexp.MustCompile(`\d{1,3}[\s.-]\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4,}`),
	regexp.MustCompile(`\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4,}`),
	regexp.MustCompile(`\d[\d\s().-]{8,}\d`),
}

var nonDigits = regexp.MustCompile(`\D`)

// PhoneNumber extracts a phone number from value and normalizes it to a
// "+"-prefixed digit string. Numbers with fewer than ten digits yield an
// absent result.
func PhoneNumber(value string) (string, bool) {
	v, ok := trimmed(value)
	if !ok {
		return "", false
	}

	for _, pattern := range phonePatterns {
		for _, match := range pattern.FindAllString(v, -1) {
			digits := nonDigits.ReplaceAllString(match, "")
			if len(digits) >= 10 {
				return "+" + digits, true
			}
		}
	}
	return "", false
}
