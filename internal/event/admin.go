package event

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SetPaused is pause (Paused=true) or unpause. Pauser only.
type SetPaused struct {
	Header
	Paused bool `json:"paused"`
}

func (e *SetPaused) EventType() EventType {
	if e.Paused {
		return EventTypePause
	}
	return EventTypeUnpause
}

// SetBlacklisted is blacklist (Blacklisted=true) or unblacklist. Owner only.
type SetBlacklisted struct {
	Header
	Account     common.Address `json:"account"`
	Blacklisted bool           `json:"blacklisted"`
}

func (e *SetBlacklisted) EventType() EventType {
	if e.Blacklisted {
		return EventTypeBlacklist
	}
	return EventTypeUnblacklist
}

// SetMinimumTransfer sets the per-transfer floor; zero disables it.
type SetMinimumTransfer struct {
	Header
	Value *uint256.Int `json:"value"`
}

func (e *SetMinimumTransfer) EventType() EventType { return EventTypeSetMinimumTransfer }

// SetCollectorContract rebinds the collector contract receiving fees.
type SetCollectorContract struct {
	Header
	Collector common.Address `json:"collector"`
}

func (e *SetCollectorContract) EventType() EventType { return EventTypeSetCollectorContract }

// TransferOwnership is the governance hook moving the owner role.
type TransferOwnership struct {
	Header
	NewOwner common.Address `json:"new_owner"`
}

func (e *TransferOwnership) EventType() EventType { return EventTypeTransferOwnership }
