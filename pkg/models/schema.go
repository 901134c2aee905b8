// Package models provides data structures used throughout the query pipeline.
package models

import (
	"sort"
	"time"
)

// Column describes one column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// ForeignKey describes a single foreign key reference.
type ForeignKey struct {
	Column    string `json:"column"`
	RefTable  string `json:"ref_table"`
	RefColumn string `json:"ref_column"`
}

// Table describes one table of a schema snapshot.
type Table struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	PrimaryKey  []string     `json:"primary_key,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
	// RowEstimate is a coarse row count sampled at introspection time,
	// used only for candidate cost ranking.
	RowEstimate int64 `json:"row_estimate,omitempty"`
}

// HasColumn reports whether the table has a column with the given name.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// SchemaMetadata is an immutable snapshot of a backend schema. A new
// snapshot with a higher Version supersedes it; it is never mutated in place.
type SchemaMetadata struct {
	Version        int64            `json:"version"`
	Tables         map[string]Table `json:"tables"`
	Stale          bool             `json:"stale,omitempty"`
	IntrospectedAt time.Time        `json:"introspected_at"`
}

// TableNames returns the snapshot's table names in lexical order.
func (s *SchemaMetadata) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
