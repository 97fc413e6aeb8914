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

package sink

import "time"

// Config holds sink behavior settings.
type Config struct {
	// MaxCommitAttempts bounds the optimistic retry loop per batch.
	MaxCommitAttempts int `mapstructure:"max_commit_attempts"`

	// CommitRetryDelay is the fixed delay between optimistic retries.
	CommitRetryDelay time.Duration `mapstructure:"commit_retry_delay"`

	// MergeSchema permits incoming column additions to extend the table
	// schema.
	MergeSchema bool `mapstructure:"merge_schema"`

	// OverwriteSchema permits Complete-mode commits to replace the table
	// schema wholesale.
	OverwriteSchema bool `mapstructure:"overwrite_schema"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		MaxCommitAttempts: 5,
		CommitRetryDelay:  250 * time.Millisecond,
	}
}
