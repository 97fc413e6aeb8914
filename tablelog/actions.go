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
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Row is a single table row keyed by column name.
type Row map[string]any

// OutputMode selects how a batch's commit relates to the table's existing
// contents.
type OutputMode string

const (
	// OutputAppend commits only additive file actions.
	OutputAppend OutputMode = "append"
	// OutputComplete replaces the table's entire live file set with the
	// batch's output in a single commit.
	OutputComplete OutputMode = "complete"
)

// AddFile records a data file joining the table's live set. Path is
// relative to the table root.
type AddFile struct {
	Path             string            `json:"path"`
	PartitionValues  map[string]string `json:"partitionValues,omitempty"`
	Size             int64             `json:"size"`
	ModificationTime int64             `json:"modificationTime"`
	RecordCount      int64             `json:"recordCount"`
}

// RemoveFile records a data file leaving the table's live set.
type RemoveFile struct {
	Path              string `json:"path"`
	DeletionTimestamp int64  `json:"deletionTimestamp"`
}

// StreamTxn is the idempotency marker recording that a streaming writer
// identity has applied a batch id. The latest marker per query id is the
// authority for whether a replayed batch was already applied.
type StreamTxn struct {
	QueryID   string `json:"queryId"`
	BatchID   int64  `json:"batchId"`
	Timestamp int64  `json:"timestamp"`
}

// Metadata holds the table's schema, partitioning, and configuration. It
// changes only through a committed metadata action.
type Metadata struct {
	ID               string            `json:"id"`
	Schema           Schema            `json:"schema"`
	PartitionColumns []string          `json:"partitionColumns,omitempty"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	CreatedTime      int64             `json:"createdTime"`
}

// ConfigAppendOnly is the table configuration key that forbids file
// removal. A Complete-mode commit against such a table fails before any
// removal is attempted.
const ConfigAppendOnly = "tablesink.appendOnly"

// AppendOnly reports whether the table configuration forbids removals.
func (m Metadata) AppendOnly() bool {
	return m.Configuration[ConfigAppendOnly] == "true"
}

// CommitInfo is the operational audit record written first in every
// commit. It carries no table state.
type CommitInfo struct {
	TxnID      string            `json:"txnId"`
	Operation  string            `json:"operation"`
	QueryID    string            `json:"queryId,omitempty"`
	BatchID    int64             `json:"batchId,omitempty"`
	Timestamp  int64             `json:"timestamp"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// Action is the tagged union written to the log, one JSON object per
// line. Exactly one field is set.
type Action struct {
	Commit *CommitInfo `json:"commitInfo,omitempty"`
	Meta   *Metadata   `json:"metadata,omitempty"`
	Add    *AddFile    `json:"add,omitempty"`
	Remove *RemoveFile `json:"remove,omitempty"`
	Txn    *StreamTxn  `json:"txn,omitempty"`
}

// EncodeActions writes actions as newline-delimited JSON.
func EncodeActions(w io.Writer, actions []Action) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i, a := range actions {
		if err := enc.Encode(a); err != nil {
			return fmt.Errorf("encode action %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// DecodeActions reads newline-delimited JSON actions, preserving order.
func DecodeActions(r io.Reader) ([]Action, error) {
	var actions []Action
	dec := json.NewDecoder(r)
	for {
		var a Action
		if err := dec.Decode(&a); err == io.EOF {
			return actions, nil
		} else if err != nil {
			return nil, fmt.Errorf("decode action %d: %w", len(actions), err)
		}
		actions = append(actions, a)
	}
}
