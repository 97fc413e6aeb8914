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

// Package lineage detects self-referential writes: a batch whose input
// data was read from the table it is being written to.
package lineage

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/tablesink/tablelog"
)

// Source is anything that can name the logs its data was derived from.
// The upstream engine resolves its read plan into canonical identities;
// this layer only checks membership.
type Source interface {
	SourceLogIdentities() mapset.Set[tablelog.LogIdentity]
}

// DetectSelfRead reports whether the source's lineage includes the target
// log's table. Identities are canonical, so aliasing path strings for the
// same physical table still match.
func DetectSelfRead(src Source, target tablelog.LogIdentity) bool {
	if src == nil {
		return false
	}
	ids := src.SourceLogIdentities()
	if ids == nil {
		return false
	}
	return ids.Contains(target)
}

// Identities resolves table paths into an identity set, for callers that
// track lineage as raw paths.
func Identities(paths ...string) (mapset.Set[tablelog.LogIdentity], error) {
	ids := mapset.NewSet[tablelog.LogIdentity]()
	for _, p := range paths {
		id, err := tablelog.ResolveIdentity(p)
		if err != nil {
			return nil, err
		}
		ids.Add(id)
	}
	return ids, nil
}
