package ingestion

import (
	"FeeLedger/internal/event"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// SubjectPrefix is the root of every inbound command subject. A command of
// type T is published on fee.commands.T.<anything>.
const SubjectPrefix = "fee.commands"

// ErrMalformed marks a command that can never be processed; the message is
// terminated rather than redelivered.
var ErrMalformed = errors.New("malformed command")

// SubjectFor returns the wildcard subject carrying commands of type et.
func SubjectFor(et event.EventType) string {
	return SubjectPrefix + "." + et.String() + ".>"
}

// EventTypeForSubject resolves the command type from the subject token
// following SubjectPrefix.
func EventTypeForSubject(subject string) (event.EventType, error) {
	rest, ok := strings.CutPrefix(subject, SubjectPrefix+".")
	if !ok {
		return event.EventTypeUnknown, fmt.Errorf("%w: subject %q outside %s", ErrMalformed, subject, SubjectPrefix)
	}
	name, _, _ := strings.Cut(rest, ".")
	et, err := event.ParseEventType(name)
	if err != nil {
		return event.EventTypeUnknown, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return et, nil
}

// ParseRawEvent converts a RawEvent (JSON bytes + command type name) into a
// typed, validated event.Event.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	et, err := event.ParseEventType(eventType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return ParsePayload(et, raw.Data)
}

// ParsePayload decodes and validates a JSON command body.
func ParsePayload(et event.EventType, data []byte) (event.Event, error) {
	evt, err := event.Decode(et, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := Validate(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Validate checks the shape of a command: header fields present and every
// amount supplied. Ledger rules (balances, roles, zero recipients) are left
// to the core so that rejections are recorded consistently.
func Validate(evt event.Event) error {
	if evt.IdempotencyKey() == uuid.Nil.String() {
		return fmt.Errorf("%w: missing command_id", ErrMalformed)
	}
	if evt.Caller() == (common.Address{}) {
		return fmt.Errorf("%w: missing caller", ErrMalformed)
	}
	if evt.SourceSequence() < 0 {
		return fmt.Errorf("%w: negative nonce %d", ErrMalformed, evt.SourceSequence())
	}
	if evt.OccurredAt().IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformed)
	}

	switch e := evt.(type) {
	case *event.Mint:
		return requireAmount("units", e.Units)
	case *event.Burn:
		return requireAmount("units", e.Units)
	case *event.BurnFrom:
		return requireAmount("units", e.Units)
	case *event.Transfer:
		return requireAmount("amount", e.Amount)
	case *event.TransferFrom:
		return requireAmount("amount", e.Amount)
	case *event.TransferBridge:
		return requireAmount("amount", e.Amount)
	case *event.AllowanceChange:
		return requireAmount("value", e.Value)
	case *event.SetMinimumTransfer:
		return requireAmount("value", e.Value)
	}
	return nil
}

func requireAmount(field string, v *uint256.Int) error {
	if v == nil {
		return fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	return nil
}
