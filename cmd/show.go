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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/tablesink/config"
	"github.com/cardinalhq/tablesink/tablelog"
)

var showCmd = &cobra.Command{
	Use:   "show <table-dir>",
	Short: "Print a table log's version, schema, live files, and markers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err := tablelog.Open(cmd.Context(), args[0], cfg.Log)
		if err != nil {
			return err
		}
		defer func() { _ = log.Close() }()

		txn, err := log.BeginTransaction(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("table:   %s\n", log.Identity().Path)
		fmt.Printf("version: %d\n", txn.ReadVersion())

		meta, hasMeta := txn.Metadata()
		if hasMeta {
			fmt.Println("schema:")
			for _, c := range meta.Schema.Columns {
				fmt.Printf("  %-24s %s\n", c.Name, c.Type)
			}
			if len(meta.PartitionColumns) > 0 {
				fmt.Printf("partitioned by: %v\n", meta.PartitionColumns)
			}
		} else {
			fmt.Println("schema:  (none committed)")
		}

		files := txn.ActiveFiles()
		fmt.Printf("live files: %d\n", len(files))
		for _, f := range files {
			fmt.Printf("  %s  rows=%d size=%d\n", f.Path, f.RecordCount, f.Size)
		}

		if queryID, _ := cmd.Flags().GetString("query-id"); queryID != "" {
			if marker, ok := txn.LatestMarker(queryID); ok {
				fmt.Printf("latest batch for %s: %d (committed %s)\n",
					queryID, marker.BatchID, time.UnixMilli(marker.Timestamp).UTC().Format(time.RFC3339))
			} else {
				fmt.Printf("no batches committed for %s\n", queryID)
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().String("query-id", "", "also show the latest committed batch for this writer identity")
	rootCmd.AddCommand(showCmd)
}
