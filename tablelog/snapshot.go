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
	"slices"
	"strings"
)

// Snapshot is the table state reconstructed by replaying the log up to a
// version. Snapshots are immutable once built and safe to share across
// transactions.
type Snapshot struct {
	version int64
	meta    Metadata
	hasMeta bool
	live    map[string]AddFile
	markers map[string]StreamTxn
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		version: -1,
		live:    make(map[string]AddFile),
		markers: make(map[string]StreamTxn),
	}
}

// apply folds one committed version's actions into the snapshot.
func (s *Snapshot) apply(version int64, actions []Action) {
	s.version = version
	for _, a := range actions {
		switch {
		case a.Meta != nil:
			s.meta = *a.Meta
			s.hasMeta = true
		case a.Add != nil:
			s.live[a.Add.Path] = *a.Add
		case a.Remove != nil:
			delete(s.live, a.Remove.Path)
		case a.Txn != nil:
			// Applied batch ids are monotonic per query, but a replayed log
			// is trusted over that invariant: keep the max.
			if prev, ok := s.markers[a.Txn.QueryID]; !ok || a.Txn.BatchID > prev.BatchID {
				s.markers[a.Txn.QueryID] = *a.Txn
			}
		}
	}
}

func (s *Snapshot) clone() *Snapshot {
	c := newSnapshot()
	c.version = s.version
	c.meta = s.meta
	c.hasMeta = s.hasMeta
	for k, v := range s.live {
		c.live[k] = v
	}
	for k, v := range s.markers {
		c.markers[k] = v
	}
	return c
}

// Version returns the snapshot's log version, -1 for an empty log.
func (s *Snapshot) Version() int64 { return s.version }

// Metadata returns the table metadata and whether any has been committed.
func (s *Snapshot) Metadata() (Metadata, bool) { return s.meta, s.hasMeta }

// ActiveFiles returns the live file set sorted by path.
func (s *Snapshot) ActiveFiles() []AddFile {
	files := make([]AddFile, 0, len(s.live))
	for _, f := range s.live {
		files = append(files, f)
	}
	slices.SortFunc(files, func(a, b AddFile) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files
}

// LatestMarker returns the most recent idempotency marker for a writer
// identity.
func (s *Snapshot) LatestMarker(queryID string) (StreamTxn, bool) {
	m, ok := s.markers[queryID]
	return m, ok
}
