package persistence

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/upgrade"
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SnapshotManager stores core snapshots and reads the event log back for
// recovery.
type SnapshotManager struct {
	db *sql.DB
}

// snapshotDoc is the JSON document stored in event_log.snapshots.data. The
// ledger state itself stays in its versioned binary form.
type snapshotDoc struct {
	Sequence        int64            `json:"sequence"`
	StateHash       string           `json:"state_hash"`
	Ledger          []byte           `json:"ledger"`
	SequenceState   map[string]int64 `json:"sequence_state"`
	IdempotencyKeys []string         `json:"idempotency_keys"`
	CreatedAt       time.Time        `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a snapshot, unverified. It returns the stored size.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *core.SnapshotState, createdAt time.Time) (int, error) {
	data, err := encodeSnapshot(snap, createdAt)
	if err != nil {
		return 0, err
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO event_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		ON CONFLICT (sequence) DO UPDATE
			SET data = $3, state_hash = $4, format_version = $5, size_bytes = $6, verified = FALSE
	`, uuid.New(), snap.Sequence, string(data), snap.StateHash[:], upgrade.Version, len(data), createdAt)
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// LoadLatestSnapshot loads the most recent verified snapshot, or nil on a
// cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*core.SnapshotState, error) {
	var data []byte
	var formatVersion int64
	err := sm.db.QueryRowContext(ctx, `
		SELECT data, format_version FROM event_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`).Scan(&data, &formatVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if err := upgrade.CheckVersion(uint64(formatVersion)); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// VerifyPending marks verified every snapshot whose state hash matches the
// persisted event at the same sequence. A snapshot taken ahead of the
// persistence worker stays pending until its event is written. Returns the
// number of snapshots verified.
func (sm *SnapshotManager) VerifyPending(ctx context.Context) (int64, error) {
	res, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots s
		SET verified = TRUE
		FROM event_log.events e
		WHERE s.verified = FALSE
		  AND e.sequence = s.sequence
		  AND e.state_hash = s.state_hash
	`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkVerified marks a snapshot as verified after an external integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE event_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads up to limit events starting at fromSequence, in
// order, for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_type, idempotency_key, caller, source_sequence,
		       payload, state_hash, prev_hash, timestamp
		FROM event_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &e.IdempotencyKey, &e.Caller, &e.SourceSequence,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log, 0 when
// it is empty.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM event_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

func encodeSnapshot(snap *core.SnapshotState, createdAt time.Time) ([]byte, error) {
	data, err := json.Marshal(snapshotDoc{
		Sequence:        snap.Sequence,
		StateHash:       hex.EncodeToString(snap.StateHash[:]),
		Ledger:          snap.Ledger,
		SequenceState:   snap.SequenceState,
		IdempotencyKeys: snap.IdempotencyKeys,
		CreatedAt:       createdAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*core.SnapshotState, error) {
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	hash, err := hex.DecodeString(doc.StateHash)
	if err != nil || len(hash) != 32 {
		return nil, fmt.Errorf("unmarshal snapshot: bad state hash %q", doc.StateHash)
	}

	snap := &core.SnapshotState{
		Sequence:        doc.Sequence,
		Ledger:          doc.Ledger,
		SequenceState:   doc.SequenceState,
		IdempotencyKeys: doc.IdempotencyKeys,
	}
	copy(snap.StateHash[:], hash)
	return snap, nil
}
