package main

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/ingestion"
	"FeeLedger/internal/observability"
	"FeeLedger/internal/persistence"
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// snapshotter captures the core's state on the dispatcher goroutine and
// stores it unverified; a snapshot is verified once the event it covers is
// in the event log with the same state hash.
type snapshotter struct {
	core       *core.DeterministicCore
	dispatcher *ingestion.Dispatcher
	store      *persistence.SnapshotManager
	metrics    *observability.Metrics
	logger     zerolog.Logger

	// Take is also reached from the admin RPC
	lastSeq atomic.Int64
}

// Take snapshots the running core. It is the TakeSnapshot admin RPC.
func (s *snapshotter) Take(ctx context.Context) (int64, error) {
	var (
		snap *core.SnapshotState
		err  error
	)
	start := time.Now()
	if execErr := s.dispatcher.Exec(ctx, func() { snap, err = s.core.CreateSnapshotState() }); execErr != nil {
		return 0, execErr
	}
	if err != nil {
		return 0, err
	}
	return s.save(ctx, snap, start)
}

// TakeFinal snapshots a core nobody else is using any more.
func (s *snapshotter) TakeFinal(ctx context.Context) (int64, error) {
	start := time.Now()
	snap, err := s.core.CreateSnapshotState()
	if err != nil {
		return 0, err
	}
	return s.save(ctx, snap, start)
}

func (s *snapshotter) save(ctx context.Context, snap *core.SnapshotState, start time.Time) (int64, error) {
	if snap.Sequence <= 0 {
		return 0, nil
	}
	size, err := s.store.SaveSnapshot(ctx, snap, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	s.lastSeq.Store(snap.Sequence)

	if s.metrics != nil {
		s.metrics.SnapshotTaken.Inc()
		s.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		s.metrics.SnapshotSizeBytes.Set(float64(size))
		s.metrics.SnapshotLastSeq.Set(float64(snap.Sequence))
	}
	s.logger.Info().Int64("sequence", snap.Sequence).Int("bytes", size).Msg("snapshot saved")

	s.verify(ctx)
	return snap.Sequence, nil
}

func (s *snapshotter) verify(ctx context.Context) {
	n, err := s.store.VerifyPending(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("snapshot verification failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int64("verified", n).Msg("snapshots verified")
	}
}

// Run takes a snapshot whenever interval commands have committed since the
// last one.
func (s *snapshotter) Run(ctx context.Context, interval int64, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var next int64
			if err := s.dispatcher.Exec(ctx, func() { next = s.core.GetSequence() }); err != nil {
				return err
			}
			if next-1-s.lastSeq.Load() < interval {
				s.verify(ctx)
				continue
			}
			if _, err := s.Take(ctx); err != nil {
				s.logger.Error().Err(err).Msg("periodic snapshot failed")
			}
		}
	}
}
