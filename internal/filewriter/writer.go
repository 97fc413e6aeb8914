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

// Package filewriter turns batch rows into Parquet data files under the
// table root, one file per partition group.
package filewriter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/tablesink/internal/idgen"
	"github.com/cardinalhq/tablesink/tablelog"
)

const maxConcurrentFiles = 4

// Writer writes rows for one table. Files it creates are unreferenced
// until the caller commits them to the log; files left behind by a failed
// commit are orphans eligible for garbage collection, never corruption.
type Writer struct {
	tableDir string
	ids      *idgen.ULIDGenerator
}

// NewWriter creates a writer rooted at the table directory.
func NewWriter(tableDir string) *Writer {
	return &Writer{
		tableDir: tableDir,
		ids:      idgen.NewULIDGenerator(),
	}
}

// WriteRows writes the rows as Parquet files, split by the values of the
// partition columns, and returns one AddFile per written file with paths
// relative to the table root. On error, files already written by this
// call are removed.
func (w *Writer) WriteRows(ctx context.Context, rows []tablelog.Row, schema tablelog.Schema, partitionColumns []string) ([]tablelog.AddFile, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	pqSchema, err := parquetSchema(schema)
	if err != nil {
		return nil, err
	}

	groups, err := partitionRows(rows, schema, partitionColumns)
	if err != nil {
		return nil, err
	}

	adds := make([]tablelog.AddFile, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)
	for i, grp := range groups {
		g.Go(func() error {
			add, err := w.writeFile(gctx, grp, pqSchema)
			if err != nil {
				return err
			}
			adds[i] = add
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, w.cleanup(adds, err)
	}
	return adds, nil
}

// cleanup removes any files written before the failure.
func (w *Writer) cleanup(adds []tablelog.AddFile, cause error) error {
	result := cause
	for _, add := range adds {
		if add.Path == "" {
			continue
		}
		if rmErr := os.Remove(filepath.Join(w.tableDir, add.Path)); rmErr != nil && !os.IsNotExist(rmErr) {
			result = multierror.Append(result, fmt.Errorf("remove staged file %s: %w", add.Path, rmErr))
		}
	}
	return result
}

type partitionGroup struct {
	values map[string]string
	dir    string
	rows   []map[string]any
}

// partitionRows normalizes row values against the schema and groups them
// by partition values. Group order follows first appearance so output is
// deterministic for a given input.
func partitionRows(rows []tablelog.Row, schema tablelog.Schema, partitionColumns []string) ([]partitionGroup, error) {
	groups := make([]partitionGroup, 0, 1)
	index := make(map[string]int)

	for i, row := range rows {
		normalized, err := normalizeRow(row, schema)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}

		key, values, dir := partitionFor(normalized, partitionColumns)
		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, partitionGroup{values: values, dir: dir})
		}
		groups[gi].rows = append(groups[gi].rows, normalized)
	}
	return groups, nil
}

func partitionFor(row map[string]any, partitionColumns []string) (key string, values map[string]string, dir string) {
	if len(partitionColumns) == 0 {
		return "", nil, ""
	}
	values = make(map[string]string, len(partitionColumns))
	parts := make([]string, 0, len(partitionColumns))
	for _, col := range partitionColumns {
		v := "null"
		if pv, ok := row[col]; ok && pv != nil {
			v = fmt.Sprint(pv)
		}
		values[col] = v
		parts = append(parts, col+"="+escapePathValue(v))
	}
	dir = filepath.Join(parts...)
	return dir, values, dir
}

// escapePathValue percent-encodes characters that would change the shape
// of a key=value partition directory name. The unescaped value stays
// authoritative in the committed PartitionValues map.
var pathValueEscaper = strings.NewReplacer(
	"%", "%25",
	"/", "%2F",
	"\\", "%5C",
	"=", "%3D",
)

func escapePathValue(v string) string {
	return pathValueEscaper.Replace(v)
}

func (w *Writer) writeFile(ctx context.Context, grp partitionGroup, schema *parquet.Schema) (tablelog.AddFile, error) {
	if err := ctx.Err(); err != nil {
		return tablelog.AddFile{}, err
	}

	now := time.Now()
	relPath := filepath.Join(grp.dir, fmt.Sprintf("part-%s.parquet", w.ids.Make(now)))
	absPath := filepath.Join(w.tableDir, relPath)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return tablelog.AddFile{}, fmt.Errorf("create partition directory: %w", err)
	}

	f, err := os.Create(absPath)
	if err != nil {
		return tablelog.AddFile{}, fmt.Errorf("create data file: %w", err)
	}

	pw := parquet.NewGenericWriter[map[string]any](f, schema, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(grp.rows); err != nil {
		_ = f.Close()
		_ = os.Remove(absPath)
		return tablelog.AddFile{}, fmt.Errorf("write rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		_ = f.Close()
		_ = os.Remove(absPath)
		return tablelog.AddFile{}, fmt.Errorf("finalize data file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(absPath)
		return tablelog.AddFile{}, fmt.Errorf("close data file: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return tablelog.AddFile{}, fmt.Errorf("stat data file: %w", err)
	}

	return tablelog.AddFile{
		Path:             relPath,
		PartitionValues:  grp.values,
		Size:             info.Size(),
		ModificationTime: now.UnixMilli(),
		RecordCount:      int64(len(grp.rows)),
	}, nil
}
