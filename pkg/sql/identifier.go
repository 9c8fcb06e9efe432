// Package sql provides identifier sanitization and quoting for statements
// generated from operator-supplied names.
//
// Every table and column name that reaches a generated statement goes
// through Quote; values always travel as bound parameters.
package sql

import (
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ReservedIdentifier is the generated row identifier column. It is always
// the first column and the primary key of every engine-managed table, and
// may never appear in an operator-supplied column map.
const ReservedIdentifier = "record_id"

// DefaultIdentifier is the fallback token when sanitization consumes an
// entire name (e.g. a name made only of punctuation).
const DefaultIdentifier = "column"

var (
	separatorRuns  = regexp.MustCompile(`[\s\-.]+`)
	invalidChars   = regexp.MustCompile(`[^A-Za-z0-9_]`)
	underscoreRuns = regexp.MustCompile(`_+`)
)

// Sanitize turns an arbitrary operator-supplied name into a safe SQL
// identifier. The mapping is deterministic: derived column names are
// generated from it and must remain stable across re-runs.
//
// Whitespace, hyphen and dot runs collapse to a single underscore, any
// character outside [A-Za-z0-9_] is stripped, leading/trailing underscores
// are trimmed, and a name that would not start with a letter or underscore
// is prefixed with one.
func Sanitize(name string) string {
	s := separatorRuns.ReplaceAllString(strings.TrimSpace(name), "_")
	s = invalidChars.ReplaceAllString(s, "")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return DefaultIdentifier
	}
	first := s[0]
	if !(first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		s = "_" + s
	}
	return s
}

// Quote wraps an identifier in double quotes, doubling any embedded quote
// character, so names containing spaces or quotes can be used verbatim in
// generated statements. It always quotes, for uniform code paths.
func Quote(identifier string) string {
	return pgx.Identifier{identifier}.Sanitize()
}

// QuoteQualified quotes a schema-qualified table reference. An empty
// schema yields just the quoted table name.
func QuoteQualified(schemaName, tableName string) string {
	if schemaName == "" {
		return Quote(tableName)
	}
	return Quote(schemaName) + "." + Quote(tableName)
}
