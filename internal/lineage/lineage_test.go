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

package lineage

import (
	"os"
	"path/filepath"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/tablesink/tablelog"
)

type fakeSource struct {
	ids mapset.Set[tablelog.LogIdentity]
}

func (f *fakeSource) SourceLogIdentities() mapset.Set[tablelog.LogIdentity] {
	return f.ids
}

func TestDetectSelfRead(t *testing.T) {
	dir := t.TempDir()
	target, err := tablelog.ResolveIdentity(filepath.Join(dir, "target"))
	require.NoError(t, err)
	other, err := tablelog.ResolveIdentity(filepath.Join(dir, "other"))
	require.NoError(t, err)

	assert.False(t, DetectSelfRead(nil, target))
	assert.False(t, DetectSelfRead(&fakeSource{}, target))
	assert.False(t, DetectSelfRead(&fakeSource{ids: mapset.NewSet(other)}, target))
	assert.True(t, DetectSelfRead(&fakeSource{ids: mapset.NewSet(other, target)}, target))
}

func TestDetectSelfRead_AliasedPath(t *testing.T) {
	dir := t.TempDir()
	table := filepath.Join(dir, "events")
	require.NoError(t, os.MkdirAll(table, 0o755))
	link := filepath.Join(dir, "alias")
	require.NoError(t, os.Symlink(table, link))

	target, err := tablelog.ResolveIdentity(table)
	require.NoError(t, err)

	// Lineage recorded via the alias must still hit the target identity.
	ids, err := Identities(link)
	require.NoError(t, err)
	assert.True(t, DetectSelfRead(&fakeSource{ids: ids}, target))
}
