package event

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventType discriminator for command payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota

	// Token
	EventTypeInitialize
	EventTypeMint
	EventTypeBurn
	EventTypeBurnFrom
	EventTypeTransfer
	EventTypeTransferFrom
	EventTypeTransferBridge
	EventTypeApprove
	EventTypeIncreaseAllowance
	EventTypeDecreaseAllowance

	// Token administration
	EventTypePause
	EventTypeUnpause
	EventTypeBlacklist
	EventTypeUnblacklist
	EventTypeSetMinimumTransfer
	EventTypeSetCollectorContract
	EventTypeTransferOwnership

	// Fee collector
	EventTypeAddWhitelist
	EventTypeDeleteWhitelist
	EventTypeAddFeeCollector
	EventTypeDeleteFeeCollector
	EventTypeSetFeeRatio
	EventTypeWithdraw
	EventTypeWithdrawAll

	eventTypeCount
)

// EventEnvelope wraps every command in the log
type EventEnvelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Address the command is executed as
	Caller common.Address

	// Versioned input timestamp (NOT wall-clock)
	Timestamp time.Time

	// Caller nonce for ordering validation
	SourceSequence int64

	// JSON-encoded command
	Payload []byte

	// SHA-256 of state AFTER applying this command
	StateHash [32]byte

	// Previous command's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all commands must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Caller returns the address the command acts as
	Caller() common.Address

	// SourceSequence returns the caller's nonce
	SourceSequence() int64

	// OccurredAt returns the versioned input timestamp
	OccurredAt() time.Time
}

// Header carries the fields every command shares. Embedding it satisfies
// all of Event except EventType.
type Header struct {
	CommandID uuid.UUID      `json:"command_id"`
	Sender    common.Address `json:"caller"`
	Nonce     int64          `json:"nonce"`
	Timestamp time.Time      `json:"timestamp"`
}

func (h Header) IdempotencyKey() string { return h.CommandID.String() }
func (h Header) Caller() common.Address { return h.Sender }
func (h Header) SourceSequence() int64  { return h.Nonce }
func (h Header) OccurredAt() time.Time  { return h.Timestamp }

var eventTypeNames = [...]string{
	EventTypeUnknown:              "Unknown",
	EventTypeInitialize:           "Initialize",
	EventTypeMint:                 "Mint",
	EventTypeBurn:                 "Burn",
	EventTypeBurnFrom:             "BurnFrom",
	EventTypeTransfer:             "Transfer",
	EventTypeTransferFrom:         "TransferFrom",
	EventTypeTransferBridge:       "TransferBridge",
	EventTypeApprove:              "Approve",
	EventTypeIncreaseAllowance:    "IncreaseAllowance",
	EventTypeDecreaseAllowance:    "DecreaseAllowance",
	EventTypePause:                "Pause",
	EventTypeUnpause:              "Unpause",
	EventTypeBlacklist:            "Blacklist",
	EventTypeUnblacklist:          "Unblacklist",
	EventTypeSetMinimumTransfer:   "SetMinimumTransfer",
	EventTypeSetCollectorContract: "SetCollectorContract",
	EventTypeTransferOwnership:    "TransferOwnership",
	EventTypeAddWhitelist:         "AddWhitelist",
	EventTypeDeleteWhitelist:      "DeleteWhitelist",
	EventTypeAddFeeCollector:      "AddFeeWithCollector",
	EventTypeDeleteFeeCollector:   "DeleteFeeWithCollector",
	EventTypeSetFeeRatio:          "SetFeeRatio",
	EventTypeWithdraw:             "Withdraw",
	EventTypeWithdrawAll:          "WithdrawAll",
}

func (et EventType) String() string {
	if et <= EventTypeUnknown || et >= eventTypeCount {
		return "Unknown"
	}
	return eventTypeNames[et]
}

// ParseEventType is the inverse of String.
func ParseEventType(name string) (EventType, error) {
	for et := EventTypeUnknown + 1; et < eventTypeCount; et++ {
		if eventTypeNames[et] == name {
			return et, nil
		}
	}
	return EventTypeUnknown, fmt.Errorf("unknown event type: %s", name)
}

// AllEventTypes lists every routable command type in declaration order.
func AllEventTypes() []EventType {
	out := make([]EventType, 0, eventTypeCount-1)
	for et := EventTypeUnknown + 1; et < eventTypeCount; et++ {
		out = append(out, et)
	}
	return out
}

// IsAdmin reports whether the command only changes configuration and never
// moves balances.
func (et EventType) IsAdmin() bool {
	switch et {
	case EventTypeInitialize, EventTypePause, EventTypeUnpause, EventTypeBlacklist, EventTypeUnblacklist,
		EventTypeSetMinimumTransfer, EventTypeSetCollectorContract, EventTypeTransferOwnership,
		EventTypeAddWhitelist, EventTypeDeleteWhitelist, EventTypeAddFeeCollector,
		EventTypeDeleteFeeCollector, EventTypeSetFeeRatio:
		return true
	}
	return false
}
