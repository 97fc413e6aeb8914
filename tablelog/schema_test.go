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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_Validate(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		wantErr bool
	}{
		{
			name:   "all writable types",
			schema: NewSchema(Column{Name: "a", Type: TypeInt64}, Column{Name: "b", Type: TypeString}),
		},
		{
			name:   "empty schema",
			schema: Schema{},
		},
		{
			name:    "null placeholder column",
			schema:  NewSchema(Column{Name: "a", Type: TypeInt64}, Column{Name: "b", Type: TypeNull}),
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnwritableSchema))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestColumnType_Widens(t *testing.T) {
	assert.True(t, TypeFloat64.Widens(TypeInt64))
	assert.True(t, TypeInt64.Widens(TypeInt64))
	assert.False(t, TypeInt64.Widens(TypeFloat64))
	assert.False(t, TypeString.Widens(TypeInt64))
}

func TestSchema_CompatibleWith(t *testing.T) {
	table := NewSchema(
		Column{Name: "a", Type: TypeInt64},
		Column{Name: "b", Type: TypeFloat64},
		Column{Name: "c", Type: TypeString},
	)

	tests := []struct {
		name     string
		incoming Schema
		want     bool
	}{
		{
			name:     "identical",
			incoming: table,
			want:     true,
		},
		{
			name:     "subset of columns",
			incoming: NewSchema(Column{Name: "a", Type: TypeInt64}),
			want:     true,
		},
		{
			name:     "narrower type into wider column",
			incoming: NewSchema(Column{Name: "b", Type: TypeInt64}),
			want:     true,
		},
		{
			name:     "new column",
			incoming: NewSchema(Column{Name: "a", Type: TypeInt64}, Column{Name: "d", Type: TypeString}),
			want:     false,
		},
		{
			name:     "wider type into narrower column",
			incoming: NewSchema(Column{Name: "a", Type: TypeFloat64}),
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.incoming.CompatibleWith(table))
		})
	}
}

func TestSchema_Equal(t *testing.T) {
	a := NewSchema(Column{Name: "a", Type: TypeInt64}, Column{Name: "b", Type: TypeString})
	b := NewSchema(Column{Name: "b", Type: TypeString}, Column{Name: "a", Type: TypeInt64})

	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b), "column order is significant")
}
