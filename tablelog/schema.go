// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package tablelog defines the versioned, append-only transaction log a
// streaming sink commits against: the action set written per commit, the
// table schema model, optimistic transactions, and a file-backed log
// implementation.
package tablelog

import (
	"fmt"
	"slices"
)

// ColumnType is the logical type of a table column.
type ColumnType string

const (
	// TypeNull is a placeholder type with no data representation. A column
	// of this type can never be materialized and is rejected before any
	// file is written.
	TypeNull      ColumnType = "null"
	TypeBoolean   ColumnType = "boolean"
	TypeInt64     ColumnType = "long"
	TypeFloat64   ColumnType = "double"
	TypeString    ColumnType = "string"
	TypeBinary    ColumnType = "binary"
	TypeTimestamp ColumnType = "timestamp"
)

// Column is a single named, typed table column.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is an ordered list of columns. Column order is significant for
// equality: two schemas with the same columns in a different order are not
// equal, but merge treats them as the same column set.
type Schema struct {
	Columns []Column `json:"columns"`
}

// NewSchema builds a schema from the given columns.
func NewSchema(cols ...Column) Schema {
	return Schema{Columns: slices.Clone(cols)}
}

// Column returns the column with the given name, if present.
func (s Schema) Column(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Equal reports whether the two schemas have identical columns in
// identical order.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s.Columns, other.Columns)
}

// Empty reports whether the schema has no columns.
func (s Schema) Empty() bool {
	return len(s.Columns) == 0
}

// Validate returns ErrUnwritableSchema if any column carries a type that
// has no data representation.
func (s Schema) Validate() error {
	for _, c := range s.Columns {
		if c.Type == TypeNull {
			return fmt.Errorf("%w: column %q", ErrUnwritableSchema, c.Name)
		}
	}
	return nil
}

// Widens reports whether a value of type from can be stored without loss
// in a column of type to.
func (to ColumnType) Widens(from ColumnType) bool {
	if to == from {
		return true
	}
	return to == TypeFloat64 && from == TypeInt64
}

// CompatibleWith reports whether a batch carrying this schema can be
// written into a table with the given schema without a metadata update.
// Every incoming column must exist in the table with the same or a wider
// type; the incoming schema may omit table columns (they read back as
// nulls) but may not introduce new ones.
func (s Schema) CompatibleWith(table Schema) bool {
	for _, c := range s.Columns {
		tc, ok := table.Column(c.Name)
		if !ok {
			return false
		}
		if !tc.Type.Widens(c.Type) {
			return false
		}
	}
	return true
}
