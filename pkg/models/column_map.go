package models

import (
	"strings"

	"github.com/tabula-hq/tabula-engine/pkg/apperrors"
	enginesql "github.com/tabula-hq/tabula-engine/pkg/sql"
)

// ColumnType is the declared storage type of a dataset column.
type ColumnType string

const (
	TypeText    ColumnType = "TEXT"
	TypeInteger ColumnType = "INTEGER"
	TypeReal    ColumnType = "REAL"
	TypeBlob    ColumnType = "BLOB"
)

// Normalize maps a raw declared type onto a known ColumnType.
// Unrecognized types default to TEXT.
func (t ColumnType) Normalize() ColumnType {
	switch ColumnType(strings.ToUpper(strings.TrimSpace(string(t)))) {
	case TypeInteger:
		return TypeInteger
	case TypeReal:
		return TypeReal
	case TypeBlob:
		return TypeBlob
	default:
		return TypeText
	}
}

// PostgresType returns the Postgres column type for a declared type.
func (t ColumnType) PostgresType() string {
	switch t.Normalize() {
	case TypeInteger:
		return "BIGINT"
	case TypeReal:
		return "DOUBLE PRECISION"
	case TypeBlob:
		return "BYTEA"
	default:
		return "TEXT"
	}
}

// ColumnSpec declares one column of a dataset or registry.
type ColumnSpec struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	HoldsBinary bool       `json:"holds_binary_content,omitempty"`
}

// ColumnMap is the ordered set of declared columns. Order is load-bearing:
// ingestion validates incoming columns against it positionally, so it is
// modeled as a list rather than a map.
type ColumnMap []ColumnSpec

// Validate checks a column map at the configuration boundary. Entries
// naming the reserved identifier column are dropped (the caller logs
// them); duplicate or empty names and hostile names fail.
//
// The returned map has normalized types and no reserved entries.
func (m ColumnMap) Validate() (ColumnMap, []string, error) {
	if len(m) == 0 {
		return nil, nil, apperrors.Validation("column map must declare at least one column", "columns", "")
	}

	out := make(ColumnMap, 0, len(m))
	var dropped []string
	seen := make(map[string]struct{}, len(m))

	for _, spec := range m {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, nil, apperrors.Validation("column name must not be empty", "columns", "")
		}
		if strings.EqualFold(name, enginesql.ReservedIdentifier) {
			dropped = append(dropped, name)
			continue
		}
		if res := enginesql.CheckForInjection("column", name); res != nil {
			return nil, nil, apperrors.Validation("column name contains a SQL injection pattern", "column", name)
		}
		if _, dup := seen[name]; dup {
			return nil, nil, apperrors.Validation("duplicate column name", "column", name)
		}
		seen[name] = struct{}{}
		out = append(out, ColumnSpec{Name: name, Type: spec.Type.Normalize(), HoldsBinary: spec.HoldsBinary})
	}

	if len(out) == 0 {
		return nil, nil, apperrors.Validation("column map declares only the reserved identifier column", "columns", enginesql.ReservedIdentifier)
	}
	return out, dropped, nil
}

// Names returns the declared column names in order.
func (m ColumnMap) Names() []string {
	names := make([]string, len(m))
	for i, spec := range m {
		names[i] = spec.Name
	}
	return names
}

// Get returns the spec for name, if declared.
func (m ColumnMap) Get(name string) (ColumnSpec, bool) {
	for _, spec := range m {
		if spec.Name == name {
			return spec, true
		}
	}
	return ColumnSpec{}, false
}

// BinaryColumns returns the names of columns flagged as holding embedded
// binary/image content.
func (m ColumnMap) BinaryColumns() []string {
	var names []string
	for _, spec := range m {
		if spec.HoldsBinary {
			names = append(names, spec.Name)
		}
	}
	return names
}
