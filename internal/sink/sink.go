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

// Package sink applies micro-batches to a versioned table log exactly
// once. Each batch commits its schema update, file changes, and an
// idempotency marker atomically; replays of an already-applied batch id
// are detected inside the commit transaction and skipped.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"github.com/cardinalhq/tablesink/internal/idempotency"
	"github.com/cardinalhq/tablesink/internal/lineage"
	"github.com/cardinalhq/tablesink/internal/logctx"
	"github.com/cardinalhq/tablesink/internal/schemaevolve"
	"github.com/cardinalhq/tablesink/tablelog"
)

// ErrCommitConflict is returned when every optimistic commit attempt for
// a batch was rejected by concurrent commits. The batch is safe to retry
// on the next trigger.
var ErrCommitConflict = errors.New("sink: optimistic commit retries exhausted")

// FileWriter is the collaborator that turns rows into data files.
type FileWriter interface {
	WriteRows(ctx context.Context, rows []tablelog.Row, schema tablelog.Schema, partitionColumns []string) ([]tablelog.AddFile, error)
}

// Batch is one micro-batch delivered by the upstream engine. Delivery is
// at-least-once: the same batch id may arrive again after a restart,
// possibly with different row content.
type Batch struct {
	Rows   []tablelog.Row
	Schema tablelog.Schema

	// Sources names the logs this batch's content was derived from, used
	// to detect a batch reading its own destination table.
	Sources mapset.Set[tablelog.LogIdentity]
}

// SourceLogIdentities implements lineage.Source.
func (b *Batch) SourceLogIdentities() mapset.Set[tablelog.LogIdentity] {
	return b.Sources
}

// Status is the outcome class of an AddBatch call.
type Status string

const (
	// StatusCommitted means the batch's actions were appended to the log.
	StatusCommitted Status = "committed"
	// StatusSkipped means the batch id was already applied; nothing was
	// written. This is a successful no-op, not an error.
	StatusSkipped Status = "skipped"
)

// CommitResult describes what AddBatch did.
type CommitResult struct {
	Status       Status
	BatchID      int64
	Version      int64
	FilesAdded   int
	FilesRemoved int
	RowsWritten  int64
}

// removalPlanFunc computes the file removals a commit needs for its
// output mode.
type removalPlanFunc func(txn tablelog.Txn, meta tablelog.Metadata) ([]tablelog.RemoveFile, error)

// removalPlans maps each output mode to its removal strategy. A new mode
// must register here or sink construction rejects it.
var removalPlans = map[tablelog.OutputMode]removalPlanFunc{
	tablelog.OutputAppend:   planAppend,
	tablelog.OutputComplete: planComplete,
}

func planAppend(tablelog.Txn, tablelog.Metadata) ([]tablelog.RemoveFile, error) {
	return nil, nil
}

func planComplete(txn tablelog.Txn, meta tablelog.Metadata) ([]tablelog.RemoveFile, error) {
	if meta.AppendOnly() {
		return nil, fmt.Errorf("%w: complete output mode requires removal", tablelog.ErrNonRemovableTable)
	}
	// A replacing commit depends on the entire live set, including an
	// empty one: a concurrent append must conflict even when there is
	// nothing to remove.
	txn.MarkFullTableRead()
	now := time.Now().UnixMilli()
	files := txn.ActiveFiles()
	removals := make([]tablelog.RemoveFile, 0, len(files))
	for _, f := range files {
		removals = append(removals, tablelog.RemoveFile{Path: f.Path, DeletionTimestamp: now})
	}
	return removals, nil
}

// StreamingSink owns one long-lived log handle for its target table and
// applies batches for one writer identity. Batches for a given query are
// serialized by the upstream engine; other writers may commit to the same
// table concurrently, arbitrated only by the log's optimistic commit.
type StreamingSink struct {
	log         tablelog.Log
	writer      FileWriter
	tracker     *idempotency.Tracker
	mode        tablelog.OutputMode
	partitionBy []string
	cfg         Config
}

// New builds a sink writing to the given log as the given writer
// identity. The sink takes ownership of the log handle; Close releases
// it.
func New(log tablelog.Log, writer FileWriter, queryID string, mode tablelog.OutputMode, partitionBy []string, cfg Config) (*StreamingSink, error) {
	if queryID == "" {
		return nil, fmt.Errorf("sink: query id must not be empty")
	}
	if _, ok := removalPlans[mode]; !ok {
		return nil, fmt.Errorf("sink: unsupported output mode %q", mode)
	}
	if cfg.MaxCommitAttempts <= 0 {
		cfg.MaxCommitAttempts = DefaultConfig().MaxCommitAttempts
	}
	if cfg.CommitRetryDelay <= 0 {
		cfg.CommitRetryDelay = DefaultConfig().CommitRetryDelay
	}
	return &StreamingSink{
		log:         log,
		writer:      writer,
		tracker:     idempotency.NewTracker(queryID),
		mode:        mode,
		partitionBy: partitionBy,
		cfg:         cfg,
	}, nil
}

// QueryID returns the writer identity this sink commits as.
func (s *StreamingSink) QueryID() string { return s.tracker.QueryID() }

// Close releases the log handle.
func (s *StreamingSink) Close() error { return s.log.Close() }

// NewQueryID generates a fresh writer identity for a new logical query.
func NewQueryID() string { return uuid.NewString() }

// AddBatch applies one micro-batch. On a conflicting concurrent commit
// the whole sequence is retried against a fresh snapshot up to the
// configured attempt bound, then fails with ErrCommitConflict. If the
// caller never observes the outcome (cancellation, crash), the committed
// marker is authoritative: resubmitting the same batch id yields a
// skipped result rather than a second application.
func (s *StreamingSink) AddBatch(ctx context.Context, batchID int64, batch *Batch) (CommitResult, error) {
	ctx = logctx.WithAttrs(ctx,
		"query_id", s.tracker.QueryID(),
		"batch_id", batchID)

	// Reject non-materializable schemas before touching storage.
	if err := batch.Schema.Validate(); err != nil {
		return CommitResult{}, err
	}

	selfRead := lineage.DetectSelfRead(batch, s.log.Identity())
	if selfRead {
		logctx.FromContext(ctx).Debug("Batch reads its own destination table, forcing full-table read dependency")
	}

	var lastErr error
	for attempt := 0; attempt < s.cfg.MaxCommitAttempts; attempt++ {
		if attempt > 0 {
			commitConflictsCounter.Add(ctx, 1)
			logctx.FromContext(ctx).Warn("Commit conflicted, retrying against a fresh snapshot",
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return CommitResult{}, ctx.Err()
			case <-time.After(s.cfg.CommitRetryDelay):
			}
		}

		res, err := s.attempt(ctx, batchID, batch, selfRead)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, tablelog.ErrConflict) {
			return CommitResult{}, err
		}
		lastErr = err
	}
	return CommitResult{}, fmt.Errorf("%w: batch %d after %d attempts: %v",
		ErrCommitConflict, batchID, s.cfg.MaxCommitAttempts, lastErr)
}

// attempt runs one full commit sequence inside a single transaction.
func (s *StreamingSink) attempt(ctx context.Context, batchID int64, batch *Batch, selfRead bool) (CommitResult, error) {
	txn, err := s.log.BeginTransaction(ctx)
	if err != nil {
		return CommitResult{}, err
	}
	if selfRead {
		txn.MarkFullTableRead()
	}

	meta, hasMeta := txn.Metadata()
	newSchema, schemaChanged, err := schemaevolve.Reconcile(meta.Schema, batch.Schema, s.mode, schemaevolve.Options{
		OverwriteAllowed: s.cfg.OverwriteSchema,
		MergeAllowed:     s.cfg.MergeSchema,
	})
	if err != nil {
		return CommitResult{}, err
	}

	// The skip check runs inside the same transaction that would commit,
	// so a marker committed by a concurrent writer either is visible here
	// or conflicts with our commit.
	if s.tracker.ShouldSkip(txn, batchID) {
		batchesSkippedCounter.Add(ctx, 1)
		logctx.FromContext(ctx).Info("Batch already applied, skipping")
		return CommitResult{
			Status:  StatusSkipped,
			BatchID: batchID,
			Version: txn.ReadVersion(),
		}, nil
	}

	removals, err := removalPlans[s.mode](txn, meta)
	if err != nil {
		return CommitResult{}, err
	}

	partitionBy := s.partitionBy
	if hasMeta && len(meta.PartitionColumns) > 0 {
		partitionBy = meta.PartitionColumns
	}

	if schemaChanged {
		txn.StageMetadata(s.nextMetadata(meta, hasMeta, newSchema, partitionBy))
	}

	adds, err := s.writer.WriteRows(ctx, batch.Rows, newSchema, partitionBy)
	if err != nil {
		return CommitResult{}, fmt.Errorf("write batch %d: %w", batchID, err)
	}

	now := time.Now()
	actions := make([]tablelog.Action, 0, len(removals)+len(adds)+1)
	for i := range removals {
		actions = append(actions, tablelog.Action{Remove: &removals[i]})
	}
	for i := range adds {
		actions = append(actions, tablelog.Action{Add: &adds[i]})
	}
	marker := tablelog.StreamTxn{
		QueryID:   s.tracker.QueryID(),
		BatchID:   batchID,
		Timestamp: now.UnixMilli(),
	}
	actions = append(actions, tablelog.Action{Txn: &marker})

	version, err := txn.Commit(ctx, actions, tablelog.CommitInfo{
		TxnID:     uuid.NewString(),
		Operation: "STREAMING UPDATE",
		QueryID:   s.tracker.QueryID(),
		BatchID:   batchID,
		Timestamp: now.UnixMilli(),
		Parameters: map[string]string{
			"outputMode": string(s.mode),
		},
	})
	if err != nil {
		if errors.Is(err, tablelog.ErrConflict) && len(adds) > 0 {
			// The staged files are unreferenced orphans; garbage collection
			// reclaims them.
			logctx.FromContext(ctx).Debug("Commit conflicted after file writes, leaving orphaned files",
				"files", len(adds))
		}
		return CommitResult{}, err
	}

	var rows int64
	for _, a := range adds {
		rows += a.RecordCount
	}
	batchesCommittedCounter.Add(ctx, 1)
	filesWrittenCounter.Add(ctx, int64(len(adds)))
	rowsWrittenCounter.Add(ctx, rows)
	logctx.FromContext(ctx).Info("Committed batch",
		"version", version,
		"files_added", len(adds),
		"files_removed", len(removals),
		"rows", rows)

	return CommitResult{
		Status:       StatusCommitted,
		BatchID:      batchID,
		Version:      version,
		FilesAdded:   len(adds),
		FilesRemoved: len(removals),
		RowsWritten:  rows,
	}, nil
}

// nextMetadata builds the metadata update staged with a schema change.
func (s *StreamingSink) nextMetadata(meta tablelog.Metadata, hasMeta bool, schema tablelog.Schema, partitionBy []string) tablelog.Metadata {
	if !hasMeta {
		return tablelog.Metadata{
			ID:               uuid.NewString(),
			Schema:           schema,
			PartitionColumns: partitionBy,
			CreatedTime:      time.Now().UnixMilli(),
		}
	}
	meta.Schema = schema
	return meta
}
