package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// JournalGenerator builds journal batches for ledger operations. The core
// positions it on the command being processed with Begin; standalone callers
// get batches with an empty event ref and sequence zero.
type JournalGenerator struct {
	eventRef  string
	sequence  int64
	timestamp int64
}

func NewJournalGenerator() *JournalGenerator {
	return &JournalGenerator{}
}

// Begin stamps subsequent batches with the command being processed.
func (jg *JournalGenerator) Begin(eventRef string, sequence, timestamp int64) {
	jg.eventRef = eventRef
	jg.sequence = sequence
	jg.timestamp = timestamp
}

// Sequence returns the sequence the generator is positioned on.
func (jg *JournalGenerator) Sequence() int64 {
	return jg.sequence
}

// NewBatch returns an empty batch stamped with the current cursor.
func (jg *JournalGenerator) NewBatch() *Batch {
	return &Batch{
		BatchID:   uuid.New(),
		EventRef:  jg.eventRef,
		Sequence:  jg.sequence,
		Timestamp: jg.timestamp,
		Journals:  make([]Journal, 0, 2),
	}
}

// appendLeg adds one entry moving amount from credit to debit. Zero amounts
// and self-moves are net-zero and produce no entry.
func (jg *JournalGenerator) appendLeg(b *Batch, debit, credit AccountKey, amount *uint256.Int, jt JournalType) {
	if amount == nil || amount.IsZero() || debit == credit {
		return
	}
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      b.Sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Amount:        new(uint256.Int).Set(amount),
		JournalType:   jt,
		Timestamp:     b.Timestamp,
	})
}

// GenerateMint moves amount from the issuance boundary to a holder.
func (jg *JournalGenerator) GenerateMint(to common.Address, amount *uint256.Int) *Batch {
	b := jg.NewBatch()
	jg.appendLeg(b, NewHolderAccountKey(to), IssuanceAccountKey(), amount, JournalTypeMint)
	return b
}

// GenerateBurn moves amount from a holder back to the issuance boundary.
func (jg *JournalGenerator) GenerateBurn(from common.Address, amount *uint256.Int) *Batch {
	b := jg.NewBatch()
	jg.appendLeg(b, IssuanceAccountKey(), NewHolderAccountKey(from), amount, JournalTypeBurn)
	return b
}

// GenerateTransfer produces the two legs of a fee-charging transfer:
// from → to for net, from → feeAccount for fee.
func (jg *JournalGenerator) GenerateTransfer(
	from, to, feeAccount common.Address,
	net, fee *uint256.Int,
) *Batch {
	b := jg.NewBatch()
	jg.appendLeg(b, NewHolderAccountKey(to), NewHolderAccountKey(from), net, JournalTypeTransfer)
	jg.appendLeg(b, NewHolderAccountKey(feeAccount), NewHolderAccountKey(from), fee, JournalTypeTransferFee)
	return b
}

// GenerateMove produces a single fee-free leg (bridge, withdraw, sweep).
func (jg *JournalGenerator) GenerateMove(from, to common.Address, amount *uint256.Int, jt JournalType) *Batch {
	b := jg.NewBatch()
	jg.appendLeg(b, NewHolderAccountKey(to), NewHolderAccountKey(from), amount, jt)
	return b
}
