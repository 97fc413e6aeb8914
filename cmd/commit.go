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

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tablesink/config"
	"github.com/cardinalhq/tablesink/internal/filewriter"
	"github.com/cardinalhq/tablesink/internal/sink"
	"github.com/cardinalhq/tablesink/tablelog"
)

var commitCmd = &cobra.Command{
	Use:   "commit <table-dir>",
	Short: "Apply one batch of rows from a JSON file to a table log",
	Long: `Reads a JSON array of row objects and commits it as one batch. The
schema is taken from --schema if given, otherwise inferred from the row
values. Re-running with the same --query-id and --batch-id is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		queryID, _ := cmd.Flags().GetString("query-id")
		batchID, _ := cmd.Flags().GetInt64("batch-id")
		rowsPath, _ := cmd.Flags().GetString("rows")
		schemaPath, _ := cmd.Flags().GetString("schema")
		modeName, _ := cmd.Flags().GetString("mode")
		partitionBy, _ := cmd.Flags().GetStringSlice("partition-by")
		cfg.Sink.MergeSchema, _ = cmd.Flags().GetBool("merge-schema")
		cfg.Sink.OverwriteSchema, _ = cmd.Flags().GetBool("overwrite-schema")

		rows, err := loadRows(rowsPath)
		if err != nil {
			return err
		}

		var schema tablelog.Schema
		if schemaPath != "" {
			schema, err = loadSchema(schemaPath)
		} else {
			schema, err = inferSchema(rows)
		}
		if err != nil {
			return err
		}

		tableDir := args[0]
		log, err := tablelog.Open(cmd.Context(), tableDir, cfg.Log)
		if err != nil {
			return err
		}

		snk, err := sink.New(log, filewriter.NewWriter(tableDir), queryID,
			tablelog.OutputMode(modeName), partitionBy, cfg.Sink)
		if err != nil {
			_ = log.Close()
			return err
		}
		defer func() { _ = snk.Close() }()

		res, err := snk.AddBatch(cmd.Context(), batchID, &sink.Batch{Rows: rows, Schema: schema})
		if err != nil {
			return err
		}
		if res.Status == sink.StatusSkipped {
			fmt.Printf("batch %d already applied, skipped\n", res.BatchID)
			return nil
		}
		fmt.Printf("committed batch %d as version %d (%d files added, %d removed, %d rows)\n",
			res.BatchID, res.Version, res.FilesAdded, res.FilesRemoved, res.RowsWritten)
		return nil
	},
}

func init() {
	commitCmd.Flags().String("query-id", "", "writer identity, stable across restarts of the same query")
	commitCmd.Flags().Int64("batch-id", 0, "batch id, non-decreasing per writer identity")
	commitCmd.Flags().String("rows", "", "path to a JSON array of row objects")
	commitCmd.Flags().String("schema", "", "path to a JSON schema file (inferred from rows when omitted)")
	commitCmd.Flags().String("mode", string(tablelog.OutputAppend), "output mode: append or complete")
	commitCmd.Flags().StringSlice("partition-by", nil, "partition columns for a new table")
	commitCmd.Flags().Bool("merge-schema", false, "allow new columns to extend the table schema")
	commitCmd.Flags().Bool("overwrite-schema", false, "allow complete mode to replace the table schema")
	_ = commitCmd.MarkFlagRequired("query-id")
	_ = commitCmd.MarkFlagRequired("batch-id")
	_ = commitCmd.MarkFlagRequired("rows")
	rootCmd.AddCommand(commitCmd)
}

func loadRows(path string) ([]tablelog.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rows file: %w", err)
	}
	var rows []tablelog.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse rows file: %w", err)
	}
	return rows, nil
}

func loadSchema(path string) (tablelog.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tablelog.Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var schema tablelog.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return tablelog.Schema{}, fmt.Errorf("parse schema file: %w", err)
	}
	return schema, nil
}

// inferSchema derives column types from the row values. JSON numbers map
// to double; a column holding only nulls keeps the null placeholder type,
// which the sink rejects before writing anything.
func inferSchema(rows []tablelog.Row) (tablelog.Schema, error) {
	types := make(map[string]tablelog.ColumnType)
	for _, row := range rows {
		for name, v := range row {
			t := tablelog.TypeNull
			switch v.(type) {
			case bool:
				t = tablelog.TypeBoolean
			case float64:
				t = tablelog.TypeFloat64
			case string:
				t = tablelog.TypeString
			}
			if existing, ok := types[name]; ok && existing != tablelog.TypeNull && t == tablelog.TypeNull {
				continue
			}
			if existing, ok := types[name]; ok && existing != tablelog.TypeNull && t != tablelog.TypeNull && existing != t {
				return tablelog.Schema{}, fmt.Errorf("column %q has mixed types %s and %s", name, existing, t)
			}
			types[name] = t
		}
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]tablelog.Column, 0, len(names))
	for _, name := range names {
		cols = append(cols, tablelog.Column{Name: name, Type: types[name]})
	}
	return tablelog.NewSchema(cols...), nil
}
