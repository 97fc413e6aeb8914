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

package sink

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	batchesCommittedCounter otelmetric.Int64Counter
	batchesSkippedCounter   otelmetric.Int64Counter
	commitConflictsCounter  otelmetric.Int64Counter
	filesWrittenCounter     otelmetric.Int64Counter
	rowsWrittenCounter      otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/tablesink/internal/sink")

	var err error
	batchesCommittedCounter, err = meter.Int64Counter(
		"tablesink.sink.batches.committed",
		otelmetric.WithDescription("Number of batches committed to the table log"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batches.committed counter: %w", err))
	}

	batchesSkippedCounter, err = meter.Int64Counter(
		"tablesink.sink.batches.skipped",
		otelmetric.WithDescription("Number of replayed batches skipped as already applied"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create batches.skipped counter: %w", err))
	}

	commitConflictsCounter, err = meter.Int64Counter(
		"tablesink.sink.commit.conflicts",
		otelmetric.WithDescription("Number of optimistic commit attempts rejected by a concurrent commit"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create commit.conflicts counter: %w", err))
	}

	filesWrittenCounter, err = meter.Int64Counter(
		"tablesink.sink.files.written",
		otelmetric.WithDescription("Number of data files written"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create files.written counter: %w", err))
	}

	rowsWrittenCounter, err = meter.Int64Counter(
		"tablesink.sink.rows.written",
		otelmetric.WithDescription("Number of rows written to data files"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.written counter: %w", err))
	}
}
