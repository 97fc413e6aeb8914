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

package tablelog

import (
	"context"
	"time"
)

// Config holds log tuning. Snapshot reconstruction replays every commit
// file, so recent snapshots are kept in a TTL cache.
type Config struct {
	SnapshotCacheTTL time.Duration `mapstructure:"snapshot_cache_ttl"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		SnapshotCacheTTL: 30 * time.Second,
	}
}

// Log is the long-lived handle a sink owns for its target table. A sink
// opens one handle at construction and closes it at shutdown; all table
// state flows through transactions begun on it.
type Log interface {
	// Identity returns the canonical identity of the table behind this log.
	Identity() LogIdentity

	// BeginTransaction captures the current committed state of the table as
	// the transaction's base snapshot.
	BeginTransaction(ctx context.Context) (Txn, error)

	// Close releases the handle. In-flight transactions fail on commit.
	Close() error
}

// Txn is one optimistic transaction against the log. Reads observe the
// base snapshot; Commit succeeds only if no conflicting commit landed
// after the base version.
type Txn interface {
	// ReadVersion returns the base snapshot's version, -1 for an empty log.
	ReadVersion() int64

	// Metadata returns the table metadata at the base snapshot. The zero
	// Metadata is returned for a table with no committed metadata yet.
	Metadata() (Metadata, bool)

	// ActiveFiles returns the live file set at the base snapshot, sorted by
	// path.
	ActiveFiles() []AddFile

	// LatestMarker returns the most recent idempotency marker committed for
	// the given writer identity, as of the base snapshot.
	LatestMarker(queryID string) (StreamTxn, bool)

	// MarkFullTableRead records that this transaction depends on the entire
	// table, not just the files it touched. Any commit that lands after the
	// base version then conflicts with this one.
	MarkFullTableRead()

	// StageMetadata schedules a metadata update to be written as part of
	// this transaction's commit.
	StageMetadata(meta Metadata)

	// Commit atomically appends the staged metadata (if any) plus the given
	// actions, prefixed by the commit info record. It returns the committed
	// version, or ErrConflict if a concurrent commit conflicts with this
	// transaction's reads or writes.
	Commit(ctx context.Context, actions []Action, info CommitInfo) (int64, error)
}
