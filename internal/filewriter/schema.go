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

package filewriter

import (
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/cardinalhq/tablesink/tablelog"
)

// parquetSchema maps a table schema onto parquet nodes. All columns are
// optional; strings use dictionary encoding.
func parquetSchema(schema tablelog.Schema) (*parquet.Schema, error) {
	nodes := make(map[string]parquet.Node, len(schema.Columns))
	for _, c := range schema.Columns {
		node, err := parquetNode(c)
		if err != nil {
			return nil, err
		}
		nodes[c.Name] = node
	}
	return parquet.NewSchema("tablesink", parquet.Group(nodes)), nil
}

func parquetNode(c tablelog.Column) (parquet.Node, error) {
	switch c.Type {
	case tablelog.TypeBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType)), nil
	case tablelog.TypeInt64:
		return parquet.Optional(parquet.Int(64)), nil
	case tablelog.TypeFloat64:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType)), nil
	case tablelog.TypeString:
		return parquet.Optional(parquet.Encoded(parquet.String(), &parquet.RLEDictionary)), nil
	case tablelog.TypeBinary:
		return parquet.Optional(parquet.Leaf(parquet.ByteArrayType)), nil
	case tablelog.TypeTimestamp:
		return parquet.Optional(parquet.Timestamp(parquet.Millisecond)), nil
	default:
		return nil, fmt.Errorf("%w: column %q (%s)", tablelog.ErrUnwritableSchema, c.Name, c.Type)
	}
}

// normalizeRow coerces row values to the schema's storage types and drops
// columns the schema does not know. Missing columns read back as nulls.
func normalizeRow(row tablelog.Row, schema tablelog.Schema) (map[string]any, error) {
	out := make(map[string]any, len(schema.Columns))
	for _, c := range schema.Columns {
		v, ok := row[c.Name]
		if !ok || v == nil {
			continue
		}
		cv, err := coerce(v, c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", c.Name, err)
		}
		out[c.Name] = cv
	}
	return out, nil
}

func coerce(v any, t tablelog.ColumnType) (any, error) {
	switch t {
	case tablelog.TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case tablelog.TypeInt64:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	case tablelog.TypeFloat64:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case int:
			return float64(n), nil
		}
	case tablelog.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case tablelog.TypeBinary:
		if b, ok := v.([]byte); ok {
			return b, nil
		}
	case tablelog.TypeTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return ts.UnixMilli(), nil
		case int64:
			return ts, nil
		}
	}
	return nil, fmt.Errorf("value of type %T cannot be stored as %s", v, t)
}
