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

// Package idempotency answers whether a batch id was already applied for
// a writer identity, from markers persisted in the table log itself.
package idempotency

import "github.com/cardinalhq/tablesink/tablelog"

// Tracker reads idempotency markers for one writer identity. It holds no
// state of its own: everything is derived from the transaction snapshot
// it is asked about, so the answer is always consistent with the commit
// the transaction will attempt.
type Tracker struct {
	queryID string
}

// NewTracker returns a tracker for the given writer identity.
func NewTracker(queryID string) *Tracker {
	return &Tracker{queryID: queryID}
}

// QueryID returns the writer identity this tracker serves.
func (t *Tracker) QueryID() string { return t.queryID }

// LatestAppliedBatch returns the highest batch id committed for this
// writer identity as of the transaction's base snapshot.
func (t *Tracker) LatestAppliedBatch(txn tablelog.Txn) (int64, bool) {
	marker, ok := txn.LatestMarker(t.queryID)
	if !ok {
		return 0, false
	}
	return marker.BatchID, true
}

// ShouldSkip reports whether the batch was already applied. It compares
// against the latest committed marker, assuming the upstream engine
// delivers dense, per-query monotonic batch ids; a reordered or gapped id
// sequence would make this check skip a genuinely new batch.
func (t *Tracker) ShouldSkip(txn tablelog.Txn, batchID int64) bool {
	latest, ok := t.LatestAppliedBatch(txn)
	return ok && latest >= batchID
}
