package event

import (
	"encoding/json"
	"fmt"
)

// New returns an empty command of the given type, with its variant flag set.
func New(et EventType) (Event, error) {
	switch et {
	case EventTypeInitialize:
		return &Initialize{}, nil
	case EventTypeMint:
		return &Mint{}, nil
	case EventTypeBurn:
		return &Burn{}, nil
	case EventTypeBurnFrom:
		return &BurnFrom{}, nil
	case EventTypeTransfer:
		return &Transfer{}, nil
	case EventTypeTransferFrom:
		return &TransferFrom{}, nil
	case EventTypeTransferBridge:
		return &TransferBridge{}, nil
	case EventTypeApprove, EventTypeIncreaseAllowance, EventTypeDecreaseAllowance:
		return &AllowanceChange{Kind: et}, nil
	case EventTypePause:
		return &SetPaused{Paused: true}, nil
	case EventTypeUnpause:
		return &SetPaused{}, nil
	case EventTypeBlacklist:
		return &SetBlacklisted{Blacklisted: true}, nil
	case EventTypeUnblacklist:
		return &SetBlacklisted{}, nil
	case EventTypeSetMinimumTransfer:
		return &SetMinimumTransfer{}, nil
	case EventTypeSetCollectorContract:
		return &SetCollectorContract{}, nil
	case EventTypeTransferOwnership:
		return &TransferOwnership{}, nil
	case EventTypeAddWhitelist:
		return &WhitelistChange{Add: true}, nil
	case EventTypeDeleteWhitelist:
		return &WhitelistChange{}, nil
	case EventTypeAddFeeCollector:
		return &CollectorChange{Add: true}, nil
	case EventTypeDeleteFeeCollector:
		return &CollectorChange{}, nil
	case EventTypeSetFeeRatio:
		return &SetFeeRatio{}, nil
	case EventTypeWithdraw:
		return &Withdraw{}, nil
	case EventTypeWithdrawAll:
		return &Withdraw{All: true}, nil
	default:
		return nil, fmt.Errorf("unknown event type: %d", et)
	}
}

// Decode parses a JSON command of the given type. The type comes from the
// envelope (or subject), never from the payload: variant flags in the
// payload are overwritten so the two cannot disagree.
func Decode(et EventType, payload []byte) (Event, error) {
	evt, err := New(et)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("parse %s: %w", et, err)
	}

	fresh, _ := New(et)
	switch e := evt.(type) {
	case *SetPaused:
		e.Paused = fresh.(*SetPaused).Paused
	case *SetBlacklisted:
		e.Blacklisted = fresh.(*SetBlacklisted).Blacklisted
	case *WhitelistChange:
		e.Add = fresh.(*WhitelistChange).Add
	case *CollectorChange:
		e.Add = fresh.(*CollectorChange).Add
	case *Withdraw:
		e.All = fresh.(*Withdraw).All
	}
	return evt, nil
}

// Encode serializes a command for the event log.
func Encode(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}
