package core

import (
	"FeeLedger/internal/upgrade"
	"fmt"
)

// SnapshotState holds the serializable in-memory state for restore. Ledger
// is the versioned state blob, so snapshots written by an older build load
// through the same migration path as an upgrade.
type SnapshotState struct {
	Sequence        int64
	StateHash       [32]byte
	Ledger          []byte
	SequenceState   map[string]int64
	IdempotencyKeys []string
}

// LedgerState exports the token and collector state after the last
// committed command, with that command's sequence.
func (c *DeterministicCore) LedgerState() (int64, *upgrade.State) {
	var s upgrade.State
	c.token.ExportState(&s)
	if c.collector != nil {
		c.collector.ExportState(&s)
	} else {
		s.FeeNumerator, s.FeeDenominator = 0, 1
	}
	return c.sequence - 1, &s
}

// CreateSnapshotState captures the state after the last committed command.
func (c *DeterministicCore) CreateSnapshotState() (*SnapshotState, error) {
	_, s := c.LedgerState()
	blob, err := upgrade.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("encode ledger state: %w", err)
	}

	return &SnapshotState{
		Sequence:        c.sequence - 1,
		StateHash:       c.hasher.GetPrevHash(),
		Ledger:          blob,
		SequenceState:   c.sequenceValidator.GetAllPartitions(),
		IdempotencyKeys: c.idempotency.Keys(),
	}, nil
}

// RestoreFromSnapshot replaces the core's state with snap. On error the
// core is partially restored and must be discarded.
func (c *DeterministicCore) RestoreFromSnapshot(snap *SnapshotState) error {
	s, err := upgrade.Decode(snap.Ledger)
	if err != nil {
		return err
	}

	if c.collector != nil {
		if err := c.collector.ImportState(s); err != nil {
			return fmt.Errorf("restore fee collector: %w", err)
		}
	}
	if err := c.token.ImportState(s); err != nil {
		return err
	}

	c.sequence = snap.Sequence + 1
	c.hasher.SetPrevHash(snap.StateHash)
	for partition, next := range snap.SequenceState {
		c.sequenceValidator.RestorePartition(partition, next)
	}
	c.idempotency.Warm(snap.IdempotencyKeys)
	return nil
}

// WarmLRU loads recent idempotency keys into the LRU cache.
func (c *DeterministicCore) WarmLRU(keys []string) {
	c.idempotency.Warm(keys)
}
