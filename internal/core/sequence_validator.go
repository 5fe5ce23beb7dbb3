package core

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrSequenceGap means an earlier nonce has not arrived yet; the command
	// may succeed when redelivered.
	ErrSequenceGap = errors.New("sequence gap")
	// ErrOutOfOrder means the nonce was already consumed by another command.
	ErrOutOfOrder = errors.New("out-of-order command")
)

// SequenceValidator enforces per-caller nonce ordering. Checking and
// advancing are separate: only commands that commit consume their nonce.
// Not thread-safe, only accessed from the single-threaded deterministic core.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected nonce
	metrics         *SequenceMetrics
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
		metrics:         NewSequenceMetrics(),
	}
}

// CheckSequence validates a nonce without consuming it. A stale nonce is
// accepted only for a known duplicate, which the caller then drops.
func (sv *SequenceValidator) CheckSequence(partition string, sourceSequence int64, isDuplicate bool) error {
	expected := sv.expectedNextSeq[partition]

	if sourceSequence < expected {
		if isDuplicate {
			return nil
		}
		sv.metrics.RecordOutOfOrder(partition)
		return fmt.Errorf("%w: partition=%s, expected=%d, got=%d",
			ErrOutOfOrder, partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		return nil
	}

	sv.metrics.RecordGap(partition, expected, sourceSequence)
	return fmt.Errorf("%w: partition=%s, expected=%d, got=%d",
		ErrSequenceGap, partition, expected, sourceSequence)
}

// Advance consumes the expected nonce of a partition.
func (sv *SequenceValidator) Advance(partition string) {
	sv.expectedNextSeq[partition]++
}

// GetExpectedSequence returns next expected sequence for a partition
func (sv *SequenceValidator) GetExpectedSequence(partition string) int64 {
	return sv.expectedNextSeq[partition]
}

// RestorePartition initializes the expected nonce (used during recovery)
func (sv *SequenceValidator) RestorePartition(partition string, seq int64) {
	sv.expectedNextSeq[partition] = seq
}

// GetAllPartitions returns a copy of every partition's expected nonce.
func (sv *SequenceValidator) GetAllPartitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for p, s := range sv.expectedNextSeq {
		out[p] = s
	}
	return out
}

// Partitions lists partition names in sorted order.
func (sv *SequenceValidator) Partitions() []string {
	names := make([]string, 0, len(sv.expectedNextSeq))
	for p := range sv.expectedNextSeq {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}

func (sv *SequenceValidator) Metrics() *SequenceMetrics {
	return sv.metrics
}

// --- Metrics ---

// SequenceMetrics tracks sequence validation stats.
// Not thread-safe, only accessed from the single-threaded deterministic core.
type SequenceMetrics struct {
	gaps       map[string]int64 // partition -> gap count
	outOfOrder map[string]int64 // partition -> out-of-order count
}

func NewSequenceMetrics() *SequenceMetrics {
	return &SequenceMetrics{
		gaps:       make(map[string]int64),
		outOfOrder: make(map[string]int64),
	}
}

func (m *SequenceMetrics) RecordGap(partition string, expected, got int64) {
	m.gaps[partition]++
}

func (m *SequenceMetrics) RecordOutOfOrder(partition string) {
	m.outOfOrder[partition]++
}

func (m *SequenceMetrics) GetGaps(partition string) int64 {
	return m.gaps[partition]
}

func (m *SequenceMetrics) GetOutOfOrder(partition string) int64 {
	return m.outOfOrder[partition]
}
