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
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

// LogIdentity identifies the physical table behind a log. Two path
// strings that alias the same table (relative vs absolute, symlinks)
// resolve to the same identity, so identity comparison answers "same
// table", not "same string".
type LogIdentity struct {
	Path string
	Hash uint64
}

func (id LogIdentity) String() string {
	return fmt.Sprintf("%s#%016x", id.Path, id.Hash)
}

// ResolveIdentity canonicalizes a table path into its log identity. The
// path does not need to exist yet; symlinks are followed when it does.
func ResolveIdentity(path string) (LogIdentity, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return LogIdentity{}, fmt.Errorf("resolve table path %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if !os.IsNotExist(err) {
			return LogIdentity{}, fmt.Errorf("resolve table path %q: %w", path, err)
		}
		resolved = filepath.Clean(abs)
	}
	return LogIdentity{Path: resolved, Hash: xxhash.Sum64String(resolved)}, nil
}
