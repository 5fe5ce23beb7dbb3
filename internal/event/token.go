package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Initialize sets the token metadata. Accepted once per ledger state.
type Initialize struct {
	Header
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Currency string `json:"currency"`
	Decimals uint8  `json:"decimals"`
}

func (e *Initialize) EventType() EventType { return EventTypeInitialize }

// Mint credits whole token units to To. Owner only.
type Mint struct {
	Header
	To    common.Address `json:"to"`
	Units *uint256.Int   `json:"units"`
}

func (e *Mint) EventType() EventType { return EventTypeMint }

// Burn destroys whole token units of the caller's balance.
type Burn struct {
	Header
	Units *uint256.Int `json:"units"`
}

func (e *Burn) EventType() EventType { return EventTypeBurn }

// BurnFrom destroys whole token units of Owner's balance against the caller's
// allowance.
type BurnFrom struct {
	Header
	Owner common.Address `json:"owner"`
	Units *uint256.Int   `json:"units"`
}

func (e *BurnFrom) EventType() EventType { return EventTypeBurnFrom }

// Transfer moves Amount minor units from the caller, fee charged.
type Transfer struct {
	Header
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (e *Transfer) EventType() EventType { return EventTypeTransfer }

// TransferFrom moves Amount from From on the caller's allowance, fee charged.
type TransferFrom struct {
	Header
	From   common.Address `json:"from"`
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
}

func (e *TransferFrom) EventType() EventType { return EventTypeTransferFrom }

// TransferBridge moves Amount fee-free through the collector contract.
type TransferBridge struct {
	Header
	To     common.Address `json:"to"`
	Amount *uint256.Int   `json:"amount"`
	Bridge common.Address `json:"bridge"`
}

func (e *TransferBridge) EventType() EventType { return EventTypeTransferBridge }

// AllowanceChange covers approve, increaseAllowance and decreaseAllowance.
type AllowanceChange struct {
	Header
	Kind    EventType      `json:"-"`
	Spender common.Address `json:"spender"`
	Value   *uint256.Int   `json:"value"`
}

func (e *AllowanceChange) EventType() EventType { return e.Kind }
