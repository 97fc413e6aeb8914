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

package idempotency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesink/tablelog"
)

func TestTracker_ShouldSkip(t *testing.T) {
	ctx := context.Background()
	log, err := tablelog.Open(ctx, t.TempDir(), tablelog.DefaultConfig())
	require.NoError(t, err)
	defer func() { _ = log.Close() }()

	tracker := NewTracker("q1")

	txn, err := log.BeginTransaction(ctx)
	require.NoError(t, err)
	_, ok := tracker.LatestAppliedBatch(txn)
	assert.False(t, ok, "no marker before any commit")
	assert.False(t, tracker.ShouldSkip(txn, 0))

	_, err = txn.Commit(ctx, []tablelog.Action{
		{Txn: &tablelog.StreamTxn{QueryID: "q1", BatchID: 5, Timestamp: 1}},
	}, tablelog.CommitInfo{TxnID: "t1", Operation: "STREAMING UPDATE", Timestamp: 1})
	require.NoError(t, err)

	txn, err = log.BeginTransaction(ctx)
	require.NoError(t, err)

	latest, ok := tracker.LatestAppliedBatch(txn)
	require.True(t, ok)
	assert.Equal(t, int64(5), latest)

	assert.True(t, tracker.ShouldSkip(txn, 5), "replay of the applied id")
	assert.True(t, tracker.ShouldSkip(txn, 4), "replay of an older id")
	assert.False(t, tracker.ShouldSkip(txn, 6), "next id must apply")

	other := NewTracker("q2")
	assert.False(t, other.ShouldSkip(txn, 5), "markers are per writer identity")
}
