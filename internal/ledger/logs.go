package ledger

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// LogKind discriminates observable ledger logs.
type LogKind int32

const (
	LogTransfer LogKind = iota
	LogApproval
	LogPaused
	LogUnpaused
	LogBlacklisted
	LogUnblacklisted
	LogOwnershipTransferred
	LogFeeRatioChanged
	LogWhitelistChanged
	LogCollectorChanged
	LogMinimumTransferChanged
	LogCollectorContractChanged
)

func (k LogKind) String() string {
	switch k {
	case LogTransfer:
		return "Transfer"
	case LogApproval:
		return "Approval"
	case LogPaused:
		return "Paused"
	case LogUnpaused:
		return "Unpaused"
	case LogBlacklisted:
		return "Blacklisted"
	case LogUnblacklisted:
		return "Unblacklisted"
	case LogOwnershipTransferred:
		return "OwnershipTransferred"
	case LogFeeRatioChanged:
		return "FeeRatioChanged"
	case LogWhitelistChanged:
		return "WhitelistChanged"
	case LogCollectorChanged:
		return "CollectorChanged"
	case LogMinimumTransferChanged:
		return "MinimumTransferChanged"
	case LogCollectorContractChanged:
		return "CollectorContractChanged"
	default:
		return "Unknown"
	}
}

// Log is an observable record emitted exactly once per triggering call.
// Field use depends on Kind: Transfer(From, To, Value), Approval(From=owner,
// To=spender, Value), Paused/Unpaused(From=caller). Admin kinds carry their
// subject in To and any numeric parameter in Value/Extra.
type Log struct {
	Kind  LogKind
	From  common.Address
	To    common.Address
	Value *uint256.Int
	Extra []uint64
}

// TransferLog builds a Transfer log.
func TransferLog(from, to common.Address, value *uint256.Int) Log {
	return Log{Kind: LogTransfer, From: from, To: to, Value: new(uint256.Int).Set(value)}
}

// ApprovalLog builds an Approval log.
func ApprovalLog(owner, spender common.Address, value *uint256.Int) Log {
	return Log{Kind: LogApproval, From: owner, To: spender, Value: new(uint256.Int).Set(value)}
}

// Receipt is the outcome of a successful ledger operation.
type Receipt struct {
	Batch *Batch
	Logs  []Log
}
