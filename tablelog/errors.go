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

import "errors"

// Common errors returned by the log and by schema handling.
var (
	ErrUnwritableSchema  = errors.New("tablelog: schema contains a column with no writable representation")
	ErrSchemaConflict    = errors.New("tablelog: conflicting types for column during schema merge")
	ErrSchemaMismatch    = errors.New("tablelog: incoming schema is not compatible with table schema")
	ErrNonRemovableTable = errors.New("tablelog: table is append-only and does not support file removal")
	ErrConflict          = errors.New("tablelog: commit rejected due to a conflicting concurrent commit")
	ErrClosed            = errors.New("tablelog: log handle is closed")
)
