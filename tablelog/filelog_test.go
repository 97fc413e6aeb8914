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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLog(t *testing.T) *FileLog {
	t.Helper()
	log, err := Open(context.Background(), t.TempDir(), DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })
	return log
}

func testMeta(schema Schema) Metadata {
	return Metadata{ID: "meta-1", Schema: schema, CreatedTime: 1}
}

func commitInfo(txnID string) CommitInfo {
	return CommitInfo{TxnID: txnID, Operation: "STREAMING UPDATE", Timestamp: 1}
}

func TestFileLog_EmptyLog(t *testing.T) {
	log := openTestLog(t)

	txn, err := log.BeginTransaction(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(-1), txn.ReadVersion())
	_, hasMeta := txn.Metadata()
	assert.False(t, hasMeta)
	assert.Empty(t, txn.ActiveFiles())
	_, ok := txn.LatestMarker("q1")
	assert.False(t, ok)
}

func TestFileLog_CommitAndReplay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	log, err := Open(ctx, dir, DefaultConfig())
	require.NoError(t, err)

	schema := NewSchema(Column{Name: "a", Type: TypeInt64})
	txn, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	txn.StageMetadata(testMeta(schema))

	version, err := txn.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-1.parquet", Size: 10, RecordCount: 2, ModificationTime: 1}},
		{Txn: &StreamTxn{QueryID: "q1", BatchID: 0, Timestamp: 1}},
	}, commitInfo("t1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)
	require.NoError(t, log.Close())

	// A fresh handle must rebuild the same state from the log alone.
	reopened, err := Open(ctx, dir, DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	txn2, err := reopened.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), txn2.ReadVersion())

	meta, hasMeta := txn2.Metadata()
	require.True(t, hasMeta)
	assert.True(t, meta.Schema.Equal(schema))

	files := txn2.ActiveFiles()
	require.Len(t, files, 1)
	assert.Equal(t, "part-1.parquet", files[0].Path)

	marker, ok := txn2.LatestMarker("q1")
	require.True(t, ok)
	assert.Equal(t, int64(0), marker.BatchID)
}

func TestFileLog_RemoveDropsFromLiveSet(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	txn, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = txn.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-1.parquet"}},
		{Add: &AddFile{Path: "part-2.parquet"}},
	}, commitInfo("t1"))
	require.NoError(t, err)

	txn, err = log.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = txn.Commit(ctx, []Action{
		{Remove: &RemoveFile{Path: "part-1.parquet", DeletionTimestamp: 2}},
		{Add: &AddFile{Path: "part-3.parquet"}},
	}, commitInfo("t2"))
	require.NoError(t, err)

	txn, err = log.BeginTransaction(ctx)
	require.NoError(t, err)
	files := txn.ActiveFiles()
	require.Len(t, files, 2)
	assert.Equal(t, "part-2.parquet", files[0].Path)
	assert.Equal(t, "part-3.parquet", files[1].Path)
}

func TestFileLog_ConcurrentAppendsAreCompatible(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	t1, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	t2, err := log.BeginTransaction(ctx)
	require.NoError(t, err)

	v1, err := t1.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-a.parquet"}},
		{Txn: &StreamTxn{QueryID: "q1", BatchID: 0}},
	}, commitInfo("t1"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v1)

	// Pure append from a different writer lands on the next version.
	v2, err := t2.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-b.parquet"}},
		{Txn: &StreamTxn{QueryID: "q2", BatchID: 0}},
	}, commitInfo("t2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v2)

	txn, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	assert.Len(t, txn.ActiveFiles(), 2)
}

func TestFileLog_FullTableReadConflicts(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	t1, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	t2, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	t2.MarkFullTableRead()

	_, err = t1.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-a.parquet"}},
	}, commitInfo("t1"))
	require.NoError(t, err)

	// Even a non-overlapping append invalidates a full-table read.
	_, err = t2.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-b.parquet"}},
	}, commitInfo("t2"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileLog_ReplacingCommitConflictsWithFileChanges(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	setup, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	_, err = setup.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-a.parquet"}},
	}, commitInfo("t0"))
	require.NoError(t, err)

	t1, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	t2, err := log.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = t1.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-b.parquet"}},
	}, commitInfo("t1"))
	require.NoError(t, err)

	// t2 replaces the table it saw at its base version; t1's append means
	// the removal set no longer covers the live set.
	_, err = t2.Commit(ctx, []Action{
		{Remove: &RemoveFile{Path: "part-a.parquet", DeletionTimestamp: 2}},
		{Add: &AddFile{Path: "part-c.parquet"}},
	}, commitInfo("t2"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileLog_SameWriterMarkerConflicts(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	t1, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	t2, err := log.BeginTransaction(ctx)
	require.NoError(t, err)

	_, err = t1.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-a.parquet"}},
		{Txn: &StreamTxn{QueryID: "q1", BatchID: 5}},
	}, commitInfo("t1"))
	require.NoError(t, err)

	// A replayed commit for the same writer identity must not slip past the
	// winner; the sink re-reads and then skips.
	_, err = t2.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-b.parquet"}},
		{Txn: &StreamTxn{QueryID: "q1", BatchID: 5}},
	}, commitInfo("t2"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileLog_MetadataChangeConflicts(t *testing.T) {
	ctx := context.Background()
	log := openTestLog(t)

	t1, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	t2, err := log.BeginTransaction(ctx)
	require.NoError(t, err)

	t1.StageMetadata(testMeta(NewSchema(Column{Name: "a", Type: TypeInt64})))
	_, err = t1.Commit(ctx, nil, commitInfo("t1"))
	require.NoError(t, err)

	_, err = t2.Commit(ctx, []Action{
		{Add: &AddFile{Path: "part-a.parquet"}},
	}, commitInfo("t2"))
	assert.ErrorIs(t, err, ErrConflict)
}

func TestFileLog_Closed(t *testing.T) {
	log := openTestLog(t)
	require.NoError(t, log.Close())

	_, err := log.BeginTransaction(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}
