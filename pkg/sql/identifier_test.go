package sql

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain name", "phone", "phone"},
		{"already safe", "first_name", "first_name"},
		{"spaces collapse", "First  Name", "First_Name"},
		{"hyphens and dots", "e-mail.address", "e_mail_address"},
		{"mixed separator run", "a - . b", "a_b"},
		{"strips punctuation", "amount($)", "amount"},
		{"non-ascii stripped", "téléphone", "tlphone"},
		{"leading digit prefixed", "2nd phone", "_2nd_phone"},
		{"trims underscores", "__name__", "name"},
		{"only punctuation falls back", "$%&", "column"},
		{"empty falls back", "", "column"},
		{"whitespace only falls back", "   ", "column"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

// Derived column names are generated from Sanitize, so two calls with the
// same input must always agree.
func TestSanitizeDeterministic(t *testing.T) {
	inputs := []string{"Phone Number", "e-mail", "2nd address", "$%&", "normal"}
	for _, in := range inputs {
		if Sanitize(in) != Sanitize(in) {
			t.Errorf("Sanitize(%q) is not deterministic", in)
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"always quotes", "phone", `"phone"`},
		{"name with space", "first name", `"first name"`},
		{"embedded quote doubled", `na"me`, `"na""me"`},
		{"keyword", "select", `"select"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Quote(tt.input); got != tt.expected {
				t.Errorf("Quote(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestQuoteQualified(t *testing.T) {
	if got := QuoteQualified("", "contacts"); got != `"contacts"` {
		t.Errorf("QuoteQualified with empty schema = %q", got)
	}
	if got := QuoteQualified("public", "contacts"); got != `"public"."contacts"` {
		t.Errorf("QuoteQualified = %q", got)
	}
}

func TestCheckForInjection(t *testing.T) {
	if res := CheckForInjection("name", "customer contacts"); res != nil {
		t.Errorf("benign name flagged as injection: %+v", res)
	}

	res := CheckForInjection("name", "x'; DROP TABLE users--")
	if res == nil {
		t.Fatal("injection attempt not detected")
	}
	if !res.IsSQLi || res.Name != "name" {
		t.Errorf("unexpected result: %+v", res)
	}
}
