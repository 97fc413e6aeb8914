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

// Package schemaevolve decides how an incoming batch schema reconciles
// with the current table schema before any data file is written.
package schemaevolve

import (
	"fmt"
	"slices"

	"github.com/cardinalhq/tablesink/tablelog"
)

// Options control which schema updates are permitted.
type Options struct {
	// OverwriteAllowed permits a Complete-mode commit to replace the table
	// schema wholesale.
	OverwriteAllowed bool
	// MergeAllowed permits new incoming columns to be appended to the table
	// schema.
	MergeAllowed bool
}

// Reconcile computes the table schema to commit alongside the batch.
// It returns the resulting schema and whether it differs from current.
//
// Order of rules: non-materializable columns always fail; a Complete-mode
// overwrite replaces wholesale; merge unions columns, appending incoming
// additions; otherwise the incoming schema must already be compatible.
func Reconcile(current, incoming tablelog.Schema, mode tablelog.OutputMode, opts Options) (tablelog.Schema, bool, error) {
	if err := incoming.Validate(); err != nil {
		return tablelog.Schema{}, false, err
	}

	// First write against an empty table adopts the batch schema.
	if current.Empty() {
		return incoming, true, nil
	}

	if mode == tablelog.OutputComplete && opts.OverwriteAllowed {
		if incoming.Equal(current) {
			return current, false, nil
		}
		return incoming, true, nil
	}

	if opts.MergeAllowed {
		return merge(current, incoming)
	}

	if incoming.CompatibleWith(current) {
		return current, false, nil
	}
	return tablelog.Schema{}, false, fmt.Errorf("%w: incoming %v vs table %v",
		tablelog.ErrSchemaMismatch, incoming.Columns, current.Columns)
}

// merge unions the schemas, keeping current column order and appending
// incoming additions in their incoming order.
func merge(current, incoming tablelog.Schema) (tablelog.Schema, bool, error) {
	merged := tablelog.Schema{Columns: slices.Clone(current.Columns)}
	changed := false
	for _, c := range incoming.Columns {
		existing, ok := current.Column(c.Name)
		if !ok {
			merged.Columns = append(merged.Columns, c)
			changed = true
			continue
		}
		if !existing.Type.Widens(c.Type) {
			return tablelog.Schema{}, false, fmt.Errorf("%w: column %q is %s, batch has %s",
				tablelog.ErrSchemaConflict, c.Name, existing.Type, c.Type)
		}
	}
	return merged, changed, nil
}
