// Package standardize implements the per-category standardization
// functions used to populate derived columns and registry canonical keys.
//
// Every function is total: any input yields either a normalized value or
// an absent result, never an error. Functions are idempotent on their own
// output so re-running enrichment over already-normalized values is safe.
package standardize

import "strings"

// Function names accepted in enrichment mappings.
const (
	FuncPhoneNumbers = "phone_numbers"
	FuncEmails       = "emails"
	FuncWebDomains   = "web_domains"
	FuncDateOnly     = "date_only"
	FuncDateTime     = "datetime"
)

// Func normalizes a raw value. The boolean is false when the value is
// empty after trimming or matches no known pattern.
type Func func(value string) (string, bool)

var funcs = map[string]Func{
	FuncPhoneNumbers: PhoneNumber,
	FuncEmails:       Email,
	FuncWebDomains:   WebDomain,
	FuncDateOnly:     DateOnly,
	FuncDateTime:     DateTime,
}

// ByName returns the standardization function registered under name.
func ByName(name string) (Func, bool) {
	f, ok := funcs[name]
	return f, ok
}

// IsValidFunction reports whether name is a known standardization function.
func IsValidFunction(name string) bool {
	_, ok := funcs[name]
	return ok
}

// FunctionNames returns the registered function names, for error messages.
func FunctionNames() []string {
	return []string{FuncPhoneNumbers, FuncEmails, FuncWebDomains, FuncDateOnly, FuncDateTime}
}

func trimmed(value string) (string, bool) {
	v := strings.TrimSpace(value)
	return v, v != ""
}
