package event

import (
	"github.com/ethereum/go-ethereum/common"
)

// WhitelistChange adds (Add=true) or deletes a fee exemption.
// Direction: 0 = FROM (sender exempt), 1 = TO (recipient exempt).
type WhitelistChange struct {
	Header
	Account   common.Address `json:"account"`
	Direction uint8          `json:"direction"`
	Add       bool           `json:"add"`
}

func (e *WhitelistChange) EventType() EventType {
	if e.Add {
		return EventTypeAddWhitelist
	}
	return EventTypeDeleteWhitelist
}

// CollectorChange registers (Add=true, Weight>0) or removes a fee collector.
type CollectorChange struct {
	Header
	Collector common.Address `json:"collector"`
	Weight    uint64         `json:"weight,omitempty"`
	Add       bool           `json:"add"`
}

func (e *CollectorChange) EventType() EventType {
	if e.Add {
		return EventTypeAddFeeCollector
	}
	return EventTypeDeleteFeeCollector
}

// SetFeeRatio replaces the fee schedule. Owner only.
type SetFeeRatio struct {
	Header
	Numerator   uint64 `json:"numerator"`
	Denominator uint64 `json:"denominator"`
}

func (e *SetFeeRatio) EventType() EventType { return EventTypeSetFeeRatio }

// Withdraw claims the caller's weighted share of the fee pool, or with All
// set sweeps the whole pool to the owner.
type Withdraw struct {
	Header
	All bool `json:"all"`
}

func (e *Withdraw) EventType() EventType {
	if e.All {
		return EventTypeWithdrawAll
	}
	return EventTypeWithdraw
}
