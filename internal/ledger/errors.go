package ledger

import "errors"

// Failure kinds shared by every ledger operation. Callers match with errors.Is;
// operations wrap them with context via fmt.Errorf("%w: ...").
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrZeroAddress           = errors.New("zero address")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrContractPaused        = errors.New("contract paused")
	ErrBlacklistedAccount    = errors.New("blacklisted account")
	ErrBelowMinimumTransfer  = errors.New("below minimum transfer")
	ErrInvalidBridge         = errors.New("invalid bridge")
	ErrAlreadyInitialized    = errors.New("already initialized")
	ErrNotInitialized        = errors.New("not initialized")
	ErrAlreadyWhitelisted    = errors.New("already whitelisted")
	ErrNotWhitelisted        = errors.New("not whitelisted")
	ErrAlreadyCollector      = errors.New("already collector")
	ErrNotCollector          = errors.New("not collector")
	ErrInvalidRatio          = errors.New("invalid fee ratio")
	ErrInvalidWeight         = errors.New("invalid collector weight")
	ErrInvalidDirection      = errors.New("invalid whitelist direction")
	ErrSchemaVersion         = errors.New("unsupported state schema version")
)
