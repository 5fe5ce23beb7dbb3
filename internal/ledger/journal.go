package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypeMint JournalType = iota
	JournalTypeBurn
	JournalTypeTransfer
	JournalTypeTransferFee
	JournalTypeBridge
	JournalTypeWithdraw
	JournalTypeSweep
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypeMint:
		return "mint"
	case JournalTypeBurn:
		return "burn"
	case JournalTypeTransfer:
		return "transfer"
	case JournalTypeTransferFee:
		return "transfer_fee"
	case JournalTypeBridge:
		return "bridge"
	case JournalTypeWithdraw:
		return "withdraw"
	case JournalTypeSweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID    // Unique identifier
	BatchID       uuid.UUID    // Groups entries of one operation
	EventRef      string       // Idempotency key of source command
	Sequence      int64        // Global event sequence
	DebitAccount  AccountKey   // Account receiving debit (balance increases)
	CreditAccount AccountKey   // Account receiving credit (balance decreases)
	Amount        *uint256.Int // Minor units, ALWAYS positive
	JournalType   JournalType
	Timestamp     int64 // Versioned input timestamp (epoch microseconds)
}

// Batch is the set of journal entries produced by one operation.
// A batch is applied atomically or not at all.
type Batch struct {
	BatchID   uuid.UUID
	EventRef  string
	Sequence  int64
	Timestamp int64
	Journals  []Journal
}

// Validate ensures the batch is well-formed. Empty batches are valid: admin
// operations change configuration without moving tokens.
func (b *Batch) Validate() error {
	for _, j := range b.Journals {
		if j.Amount == nil || j.Amount.IsZero() {
			return fmt.Errorf("journal %s has non-positive amount", j.JournalID)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}

// Touched returns every holder account the batch moves, without duplicates.
func (b *Batch) Touched() []AccountKey {
	if b == nil {
		return nil
	}
	seen := make(map[AccountKey]struct{}, len(b.Journals)*2)
	keys := make([]AccountKey, 0, len(b.Journals)*2)
	for _, j := range b.Journals {
		for _, k := range [2]AccountKey{j.DebitAccount, j.CreditAccount} {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}
