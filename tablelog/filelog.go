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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/tablesink/internal/logctx"
)

// LogDirName is the directory under the table root holding commit files.
const LogDirName = "_txn_log"

// FileLog is a Log backed by a directory of versioned commit files. Each
// commit is one newline-delimited JSON file named by its zero-padded
// version. Optimistic concurrency comes from create-exclusive semantics:
// the writer that creates version N owns it, everyone else re-checks.
type FileLog struct {
	tableDir string
	logDir   string
	identity LogIdentity
	cfg      Config

	snapshots *ttlcache.Cache[int64, *Snapshot]
	closed    atomic.Bool
}

var _ Log = (*FileLog)(nil)

// Open opens (creating if necessary) the transaction log for the table
// rooted at tableDir.
func Open(ctx context.Context, tableDir string, cfg Config) (*FileLog, error) {
	logDir := filepath.Join(tableDir, LogDirName)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	identity, err := ResolveIdentity(tableDir)
	if err != nil {
		return nil, err
	}
	if cfg.SnapshotCacheTTL <= 0 {
		cfg.SnapshotCacheTTL = DefaultConfig().SnapshotCacheTTL
	}

	snapshots := ttlcache.New(
		ttlcache.WithTTL[int64, *Snapshot](cfg.SnapshotCacheTTL),
		ttlcache.WithDisableTouchOnHit[int64, *Snapshot](),
	)
	go snapshots.Start()

	logctx.FromContext(ctx).Debug("Opened table log",
		"table", identity.Path)

	return &FileLog{
		tableDir:  tableDir,
		logDir:    logDir,
		identity:  identity,
		cfg:       cfg,
		snapshots: snapshots,
	}, nil
}

// TableDir returns the table root this log lives under.
func (l *FileLog) TableDir() string { return l.tableDir }

// Identity returns the canonical identity of the table behind this log.
func (l *FileLog) Identity() LogIdentity { return l.identity }

// Close releases the handle.
func (l *FileLog) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	l.snapshots.Stop()
	return nil
}

// BeginTransaction captures the current committed state as the base
// snapshot of a new transaction.
func (l *FileLog) BeginTransaction(ctx context.Context) (Txn, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	snap, err := l.currentSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return &fileTxn{log: l, snap: snap}, nil
}

func (l *FileLog) versionPath(version int64) string {
	return filepath.Join(l.logDir, fmt.Sprintf("%020d.json", version))
}

func (l *FileLog) latestVersion() (int64, error) {
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return -1, fmt.Errorf("list log directory: %w", err)
	}
	latest := int64(-1)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSuffix(name, ".json"), 10, 64)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	return latest, nil
}

func (l *FileLog) loadVersion(version int64) ([]Action, error) {
	f, err := os.Open(l.versionPath(version))
	if err != nil {
		return nil, fmt.Errorf("open commit %d: %w", version, err)
	}
	defer f.Close()
	actions, err := DecodeActions(f)
	if err != nil {
		return nil, fmt.Errorf("read commit %d: %w", version, err)
	}
	return actions, nil
}

// currentSnapshot replays the log up to its latest version, reusing a
// cached snapshot when one exists for that version.
func (l *FileLog) currentSnapshot(ctx context.Context) (*Snapshot, error) {
	latest, err := l.latestVersion()
	if err != nil {
		return nil, err
	}
	if latest < 0 {
		return newSnapshot(), nil
	}
	if item := l.snapshots.Get(latest); item != nil {
		return item.Value(), nil
	}

	snap := newSnapshot()
	for v := int64(0); v <= latest; v++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		actions, err := l.loadVersion(v)
		if err != nil {
			return nil, err
		}
		snap.apply(v, actions)
	}
	l.snapshots.Set(latest, snap, ttlcache.DefaultTTL)
	return snap, nil
}

// fileTxn is one optimistic transaction against a FileLog.
type fileTxn struct {
	log        *FileLog
	snap       *Snapshot
	stagedMeta *Metadata
	fullRead   bool
	done       bool
}

var _ Txn = (*fileTxn)(nil)

func (t *fileTxn) ReadVersion() int64 { return t.snap.Version() }

func (t *fileTxn) Metadata() (Metadata, bool) { return t.snap.Metadata() }

func (t *fileTxn) ActiveFiles() []AddFile { return t.snap.ActiveFiles() }

func (t *fileTxn) LatestMarker(queryID string) (StreamTxn, bool) {
	return t.snap.LatestMarker(queryID)
}

func (t *fileTxn) MarkFullTableRead() { t.fullRead = true }

func (t *fileTxn) StageMetadata(meta Metadata) { t.stagedMeta = &meta }

// Commit writes the action set as the next log version. When another
// writer claims a version first, the committed actions between our base
// and the head are checked for compatibility; compatible commits (pure
// appends crossing pure appends) just bump our target version, anything
// else returns ErrConflict.
func (t *fileTxn) Commit(ctx context.Context, actions []Action, info CommitInfo) (int64, error) {
	if t.log.closed.Load() {
		return 0, ErrClosed
	}
	if t.done {
		return 0, fmt.Errorf("tablelog: transaction already committed")
	}

	full := make([]Action, 0, len(actions)+2)
	full = append(full, Action{Commit: &info})
	if t.stagedMeta != nil {
		full = append(full, Action{Meta: t.stagedMeta})
	}
	full = append(full, actions...)

	ourRemovals := mapset.NewThreadUnsafeSet[string]()
	ourMarkers := mapset.NewThreadUnsafeSet[string]()
	for _, a := range full {
		if a.Remove != nil {
			ourRemovals.Add(a.Remove.Path)
		}
		if a.Txn != nil {
			ourMarkers.Add(a.Txn.QueryID)
		}
	}

	// The commit file is fully written under a temp name first, then
	// published with a hard link. Linking is atomic and fails if the
	// version already exists, so readers never see a partial commit and
	// two writers can never both claim a version.
	tmp, err := os.CreateTemp(t.log.logDir, ".commit-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("stage commit: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := EncodeActions(tmp, full); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("write commit: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("sync commit: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close commit: %w", err)
	}

	version := t.snap.Version() + 1
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := os.Link(tmpName, t.log.versionPath(version)); err != nil {
			if !errors.Is(err, fs.ErrExist) {
				return 0, fmt.Errorf("publish commit %d: %w", version, err)
			}
			theirs, lerr := t.log.loadVersion(version)
			if lerr != nil {
				return 0, lerr
			}
			if reason, conflicts := t.conflictsWith(theirs, ourRemovals, ourMarkers); conflicts {
				return 0, fmt.Errorf("%w: version %d: %s", ErrConflict, version, reason)
			}
			version++
			continue
		}
		t.done = true

		// Only safe to derive the head snapshot from ours when no compatible
		// commits landed in between.
		if version == t.snap.Version()+1 {
			next := t.snap.clone()
			next.apply(version, full)
			t.log.snapshots.Set(version, next, ttlcache.DefaultTTL)
		}

		logctx.FromContext(ctx).Debug("Committed table log version",
			"table", t.log.identity.Path,
			"version", version,
			"actions", len(full))
		return version, nil
	}
}

// conflictsWith classifies a commit that landed after our base version.
func (t *fileTxn) conflictsWith(theirs []Action, ourRemovals, ourMarkers mapset.Set[string]) (string, bool) {
	changesState := false
	for _, a := range theirs {
		switch {
		case a.Meta != nil:
			// Every transaction reads table metadata; any concurrent
			// metadata change invalidates that read.
			return "concurrent metadata update", true
		case a.Add != nil, a.Remove != nil:
			changesState = true
			if ourRemovals.Cardinality() > 0 {
				return "concurrent file change against a replacing commit", true
			}
		case a.Txn != nil:
			changesState = true
			if ourMarkers.Contains(a.Txn.QueryID) {
				return fmt.Sprintf("concurrent commit for writer %s", a.Txn.QueryID), true
			}
		}
	}
	if t.fullRead && changesState {
		return "table changed under a full-table read", true
	}
	if t.stagedMeta != nil && changesState {
		return "table changed under a metadata update", true
	}
	return "", false
}
