package main

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/observability"
	"FeeLedger/internal/persistence"
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// recovery rebuilds the core's in-memory state: latest verified snapshot,
// then every later command from the event log.
type recovery struct {
	snapshots *persistence.SnapshotManager
	checker   *persistence.PostgresIdempotencyChecker
	batchSize int
	warmKeys  int
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// run restores c and returns the number of replayed commands.
func (r *recovery) run(ctx context.Context, c *core.DeterministicCore) (int, error) {
	start := time.Now()

	snap, err := r.snapshots.LoadLatestSnapshot(ctx)
	if err != nil {
		// the event log alone is enough to recover
		r.logger.Warn().Err(err).Msg("failed to load snapshot, replaying from genesis")
		snap = nil
	}
	if snap != nil {
		if err := c.RestoreFromSnapshot(snap); err != nil {
			return 0, fmt.Errorf("restore snapshot %d: %w", snap.Sequence, err)
		}
		r.logger.Info().Int64("sequence", snap.Sequence).Int("lru_keys", len(snap.IdempotencyKeys)).Msg("snapshot restored")
	} else {
		r.logger.Info().Msg("no snapshot found, cold start from genesis")
	}

	replayed, err := r.replay(ctx, c)
	if err != nil {
		return replayed, err
	}

	// Snapshots written with an empty LRU leave commands committed before
	// them unknown to the fast path; the Postgres tier still catches them,
	// but warming keeps redeliveries off the database.
	if snap != nil && len(snap.IdempotencyKeys) == 0 && r.warmKeys > 0 {
		keys, err := r.checker.RecentKeys(ctx, r.warmKeys)
		if err != nil {
			r.logger.Warn().Err(err).Msg("LRU warm-up failed")
		} else {
			c.WarmLRU(keys)
			r.logger.Info().Int("keys", len(keys)).Msg("LRU warmed from event log")
		}
	}

	if r.metrics != nil {
		r.metrics.ReplayEventsTotal.Add(float64(replayed))
		r.metrics.ReplayDuration.Set(time.Since(start).Seconds())
		r.metrics.CoreSequence.Set(float64(c.GetSequence() - 1))
	}
	return replayed, nil
}

// replay re-applies every persisted command after the core's position and
// checks the hash chain against the stored hashes as it goes.
func (r *recovery) replay(ctx context.Context, c *core.DeterministicCore) (int, error) {
	replayed := 0
	for {
		rows, err := r.snapshots.LoadEventsFrom(ctx, c.GetSequence(), r.batchSize)
		if err != nil {
			return replayed, fmt.Errorf("load events from %d: %w", c.GetSequence(), err)
		}
		for _, row := range rows {
			if row.Sequence != c.GetSequence() {
				return replayed, fmt.Errorf("event log gap: expected sequence %d, found %d", c.GetSequence(), row.Sequence)
			}
			evt, err := row.DecodeEvent()
			if err != nil {
				return replayed, fmt.Errorf("decode event %d: %w", row.Sequence, err)
			}
			if err := c.ReplayEvent(evt); err != nil {
				return replayed, fmt.Errorf("replay event %d: %w", row.Sequence, err)
			}
			if c.GetSequence() != row.Sequence+1 {
				return replayed, fmt.Errorf("replay event %d: command did not commit", row.Sequence)
			}
			hash := c.GetStateHash()
			if !bytes.Equal(hash[:], row.StateHash) {
				return replayed, fmt.Errorf("state hash mismatch at sequence %d: stored %x, replayed %x",
					row.Sequence, row.StateHash, hash)
			}
			replayed++
		}
		if len(rows) < r.batchSize {
			return replayed, nil
		}
	}
}
