package server

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/ingestion"
	"FeeLedger/internal/ledger"
	"FeeLedger/internal/query"
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeTable = []struct {
	err  error
	code codes.Code
}{
	{ingestion.ErrMalformed, codes.InvalidArgument},
	{query.ErrNotFound, codes.NotFound},
	{ledger.ErrUnauthorized, codes.PermissionDenied},

	{ledger.ErrContractPaused, codes.FailedPrecondition},
	{ledger.ErrInsufficientBalance, codes.FailedPrecondition},
	{ledger.ErrInsufficientAllowance, codes.FailedPrecondition},
	{ledger.ErrBlacklistedAccount, codes.FailedPrecondition},
	{ledger.ErrBelowMinimumTransfer, codes.FailedPrecondition},
	{ledger.ErrInvalidBridge, codes.FailedPrecondition},
	{ledger.ErrNotInitialized, codes.FailedPrecondition},

	{ledger.ErrZeroAddress, codes.InvalidArgument},
	{ledger.ErrInvalidRatio, codes.InvalidArgument},
	{ledger.ErrInvalidWeight, codes.InvalidArgument},
	{ledger.ErrInvalidDirection, codes.InvalidArgument},

	{ledger.ErrAlreadyInitialized, codes.AlreadyExists},
	{ledger.ErrAlreadyWhitelisted, codes.AlreadyExists},
	{ledger.ErrAlreadyCollector, codes.AlreadyExists},
	{ledger.ErrNotWhitelisted, codes.NotFound},
	{ledger.ErrNotCollector, codes.NotFound},

	// the caller resubmits once the earlier nonce lands
	{core.ErrSequenceGap, codes.Aborted},
	{core.ErrOutOfOrder, codes.Aborted},

	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// toStatus converts a ledger, ingestion or query error into a gRPC status
// error. Unknown errors become Internal.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			return status.Error(e.code, err.Error())
		}
	}
	return status.Error(codes.Internal, err.Error())
}
