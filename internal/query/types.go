package query

import (
	"encoding/json"
	"time"
)

// Every response carries as_of_sequence: the last command reflected in the
// tables it was read from. Amounts are decimal strings in minor units.

// BalanceResponse is a holder's balance.
type BalanceResponse struct {
	Address      string `json:"address"`
	Balance      string `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// AllowanceResponse is what spender may still move on owner's behalf.
type AllowanceResponse struct {
	Owner        string `json:"owner"`
	Spender      string `json:"spender"`
	Value        string `json:"value"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// TokenInfo is the token's metadata and configuration.
type TokenInfo struct {
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Currency          string `json:"currency"`
	Decimals          uint8  `json:"decimals"`
	Initialized       bool   `json:"initialized"`
	Owner             string `json:"owner"`
	Pauser            string `json:"pauser"`
	Paused            bool   `json:"paused"`
	TotalSupply       string `json:"total_supply"`
	MinimumTransfer   string `json:"minimum_transfer"`
	CollectorContract string `json:"collector_contract"`
	AsOfSequence      int64  `json:"as_of_sequence"`
}

// FeeRatioResponse is the fee schedule: fee = floor(amount*n/d).
type FeeRatioResponse struct {
	Numerator    uint64 `json:"numerator"`
	Denominator  uint64 `json:"denominator"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// FeePoolResponse is the accrued pool and what each collector would
// receive if it withdrew now.
type FeePoolResponse struct {
	Collector    string           `json:"collector"`
	Balance      string           `json:"balance"`
	TotalWeight  uint64           `json:"total_weight"`
	Collectors   []CollectorShare `json:"collectors"`
	AsOfSequence int64            `json:"as_of_sequence"`
}

// CollectorShare is one registered collector.
type CollectorShare struct {
	Address string `json:"address"`
	Weight  uint64 `json:"weight"`
	Share   string `json:"share"`
}

// AccountStatus is an address's fee exemptions and blacklist flag.
type AccountStatus struct {
	Address       string `json:"address"`
	FromWhitelist bool   `json:"from_whitelist"`
	ToWhitelist   bool   `json:"to_whitelist"`
	Collector     bool   `json:"collector"`
	Blacklisted   bool   `json:"blacklisted"`
	AsOfSequence  int64  `json:"as_of_sequence"`
}

// TransferEntry is one Transfer log. Mints have a zero From, burns a zero
// To. Value is the gross amount, fee included.
type TransferEntry struct {
	Sequence  int64     `json:"sequence"`
	Index     int       `json:"index"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// EventEntry is one committed command from the event log.
type EventEntry struct {
	Sequence       int64           `json:"sequence"`
	EventType      string          `json:"event_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Caller         string          `json:"caller"`
	SourceSequence int64           `json:"source_sequence"`
	Payload        json.RawMessage `json:"payload"`
	StateHash      string          `json:"state_hash"`
	PrevHash       string          `json:"prev_hash"`
	Timestamp      time.Time       `json:"timestamp"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Amount        string `json:"amount"`
	JournalType   string `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	TotalSupply     string  `json:"total_supply"`
	SumOfBalances   string  `json:"sum_of_balances"`
	AsOfSequence    int64   `json:"as_of_sequence"`
}
