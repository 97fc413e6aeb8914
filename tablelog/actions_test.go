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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActions_RoundTripPreservesOrder(t *testing.T) {
	in := []Action{
		{Commit: &CommitInfo{TxnID: "t1", Operation: "STREAMING UPDATE", QueryID: "q1", BatchID: 3, Timestamp: 1000}},
		{Meta: &Metadata{ID: "m1", Schema: NewSchema(Column{Name: "a", Type: TypeInt64}), CreatedTime: 900}},
		{Remove: &RemoveFile{Path: "old/part-0.parquet", DeletionTimestamp: 1000}},
		{Add: &AddFile{Path: "part-1.parquet", Size: 42, RecordCount: 7, ModificationTime: 1000,
			PartitionValues: map[string]string{"day": "2026-08-29"}}},
		{Txn: &StreamTxn{QueryID: "q1", BatchID: 3, Timestamp: 1000}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeActions(&buf, in))

	out, err := DecodeActions(&buf)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestMetadata_AppendOnly(t *testing.T) {
	m := Metadata{}
	require.False(t, m.AppendOnly())

	m.Configuration = map[string]string{ConfigAppendOnly: "true"}
	require.True(t, m.AppendOnly())

	m.Configuration[ConfigAppendOnly] = "false"
	require.False(t, m.AppendOnly())
}
