package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a SQL injection pattern detected in an
// operator-supplied name or value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Which input failed the check
	Value       string // The value that was checked
}

// CheckForInjection screens an operator-supplied string (dataset name,
// column name, search value) with libinjection. Quoting and bound
// parameters are the primary defense; this is a second screen applied at
// the validation boundary so hostile input is rejected with a clear error
// instead of travelling further into statement generation.
//
// Returns nil if no injection pattern is detected.
func CheckForInjection(name, value string) *InjectionCheckResult {
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		IsSQLi:      true,
		Fingerprint: string(fingerprint),
		Name:        name,
		Value:       value,
	}
}
