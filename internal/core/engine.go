package core

import (
	"FeeLedger/internal/auth"
	"FeeLedger/internal/event"
	"FeeLedger/internal/fee"
	"FeeLedger/internal/ledger"
	"FeeLedger/internal/observability"
	"FeeLedger/internal/token"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

const (
	// DefaultIdempotencyCapacity bounds the in-memory dedup LRU.
	DefaultIdempotencyCapacity = 1_000_000

	// supplyCheckInterval is how often (in sequences) the full Σ balances ==
	// totalSupply check runs. Supply-changing commands are always checked.
	supplyCheckInterval = 1000
)

// Genesis is the deployment configuration of a ledger. It is not part of the
// event log: replay must start from the same genesis.
type Genesis struct {
	Owner  common.Address
	Pauser common.Address

	// Metadata, when set, initializes the token at deployment.
	Metadata *token.Metadata

	// Collector deploys the fee collector contract. A zero Address deploys
	// none and transfers are fee-free.
	Collector fee.Config
}

// DeterministicCore is the single-threaded command processor. Every call
// must come from one goroutine.
type DeterministicCore struct {
	sequence          int64
	hasher            *StateHasher
	token             *token.Token
	collector         *fee.FeeCollector
	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator
	metrics           *observability.Metrics
	logger            zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
}

// CoreOutput is one committed command with everything downstream needs.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	Logs       []ledger.Log
	StateDelta []byte
}

var errNoCollector = errors.New("no fee collector deployed")

func NewDeterministicCore(
	startSequence int64,
	genesis Genesis,
	persistChan, projectionChan chan<- CoreOutput,
	dbChecker DBIdempotencyChecker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*DeterministicCore, error) {
	// token and collector share one owner role, so a single
	// TransferOwnership moves both
	ownerAuth := auth.NewKeyAuthorizer(genesis.Owner)
	pauserAuth := auth.NewKeyAuthorizer(genesis.Pauser)
	tok := token.New(ownerAuth, pauserAuth)

	var collector *fee.FeeCollector
	if genesis.Collector.Address != (common.Address{}) {
		var err error
		collector, err = fee.NewFeeCollector(genesis.Collector, ownerAuth)
		if err != nil {
			return nil, fmt.Errorf("deploy fee collector: %w", err)
		}
		collector.BindBank(tok)
		tok.RegisterFeePolicy(collector)
		tok.BindCollectorContract(collector.Address())
	}

	if genesis.Metadata != nil {
		if err := tok.Initialize(*genesis.Metadata); err != nil {
			return nil, fmt.Errorf("initialize token: %w", err)
		}
	}

	return &DeterministicCore{
		sequence:          startSequence,
		hasher:            NewStateHasher(),
		token:             tok,
		collector:         collector,
		idempotency:       NewIdempotencyChecker(DefaultIdempotencyCapacity, dbChecker),
		sequenceValidator: NewSequenceValidator(),
		metrics:           metrics,
		logger:            logger,
		persistChan:       persistChan,
		projectionChan:    projectionChan,
	}, nil
}

// ProcessEvent is the main processing pipeline. A rejected command changes
// no state, consumes no nonce and is not persisted; the error wraps one of
// the ledger sentinels.
func (c *DeterministicCore) ProcessEvent(evt event.Event) error {
	return c.process(evt, false)
}

// ReplayEvent re-applies a command read back from the event log. Outputs are
// not re-emitted and only the in-memory dedup tier is consulted.
func (c *DeterministicCore) ReplayEvent(evt event.Event) error {
	return c.process(evt, true)
}

func (c *DeterministicCore) process(evt event.Event, replay bool) error {
	start := time.Now()
	eventType := evt.EventType().String()
	idempotencyKey := evt.IdempotencyKey()
	caller := evt.Caller()

	// Step 1: idempotency
	var isDuplicate bool
	if replay {
		isDuplicate = c.idempotency.IsDuplicateLocal(eventType, caller, idempotencyKey)
	} else {
		isDuplicate = c.idempotency.IsDuplicate(eventType, caller, idempotencyKey)
	}

	// Step 2: caller nonce
	partition := partitionFor(caller)
	sourceSequence := evt.SourceSequence()
	if err := c.sequenceValidator.CheckSequence(partition, sourceSequence, isDuplicate); err != nil {
		c.reject(eventType, "sequence", err)
		return fmt.Errorf("sequence validation failed: %w", err)
	}

	if isDuplicate {
		if c.metrics != nil {
			c.metrics.CoreEventsRejected.WithLabelValues(eventType, "duplicate").Inc()
			c.metrics.IdempotencyDuplicates.WithLabelValues(eventType).Inc()
		}
		return nil
	}

	// Step 3: dispatch. Journals are stamped with the sequence this command
	// will commit at; the core never reads the wall clock for state.
	timestamp := evt.OccurredAt()
	c.token.Generator().Begin(idempotencyKey, c.sequence, timestamp.UnixMicro())

	receipt, err := c.dispatchEvent(evt)
	if err != nil {
		c.reject(eventType, rejectReason(err), err)
		return fmt.Errorf("%s rejected: %w", eventType, err)
	}

	batch := receipt.Batch
	if batch == nil {
		batch = c.token.Generator().NewBatch()
	}
	if err := batch.Validate(); err != nil {
		panic(fmt.Sprintf("FATAL: malformed batch: %v", err))
	}

	// Step 4: hash chain
	hashStart := time.Now()
	stateDigest := c.computeStateDigest(batch, receipt.Logs)
	prevHash := c.hasher.GetPrevHash()
	stateHash := c.hasher.ComputeHash(c.sequence, stateDigest)
	if c.metrics != nil {
		c.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}

	payload, err := event.Encode(evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: encode committed command: %v", err))
	}

	output := CoreOutput{
		Envelope: &event.EventEnvelope{
			Sequence:       c.sequence,
			IdempotencyKey: idempotencyKey,
			EventType:      evt.EventType(),
			Caller:         evt.Caller(),
			Timestamp:      timestamp,
			SourceSequence: sourceSequence,
			Payload:        payload,
			StateHash:      stateHash,
			PrevHash:       prevHash,
		},
		Batch:      batch,
		Logs:       receipt.Logs,
		StateDelta: stateDigest,
	}

	c.sequenceValidator.Advance(partition)
	committed := c.sequence
	c.sequence++

	// Step 5: post-checks
	if err := c.postCheckInvariants(evt, committed); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	// Step 6: emit. Persistence blocks (backpressure, nothing is lost);
	// projections drop on full and catch up from the event log.
	if !replay {
		select {
		case c.persistChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.PersistBackpressure.Inc()
			}
			c.persistChan <- output
		}

		select {
		case c.projectionChan <- output:
		default:
			if c.metrics != nil {
				c.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}

	c.idempotency.MarkProcessed(eventType, caller, idempotencyKey)

	if evt.EventType().IsAdmin() {
		c.logger.Info().
			Int64("sequence", committed).
			Str("event_type", eventType).
			Str("caller", evt.Caller().Hex()).
			Msg("admin command applied")
	}
	c.recordCommit(eventType, &output, start)

	return nil
}

// partitionFor is the nonce partition of a caller.
func partitionFor(caller common.Address) string {
	return "caller:" + caller.Hex()
}

func (c *DeterministicCore) reject(eventType, reason string, err error) {
	c.logger.Debug().
		Err(err).
		Str("event_type", eventType).
		Str("reason", reason).
		Msg("command rejected")
	if c.metrics != nil {
		c.metrics.CoreEventsRejected.WithLabelValues(eventType, reason).Inc()
	}
}

// rejectReason maps a failure to a low-cardinality metric label.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrZeroAddress):
		return "zero_address"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, ledger.ErrContractPaused):
		return "paused"
	case errors.Is(err, ledger.ErrBlacklistedAccount):
		return "blacklisted"
	case errors.Is(err, ledger.ErrBelowMinimumTransfer):
		return "below_minimum"
	case errors.Is(err, ledger.ErrInvalidBridge):
		return "invalid_bridge"
	case errors.Is(err, ledger.ErrAlreadyInitialized), errors.Is(err, ledger.ErrNotInitialized):
		return "initialization"
	case errors.Is(err, ledger.ErrAlreadyWhitelisted), errors.Is(err, ledger.ErrNotWhitelisted),
		errors.Is(err, ledger.ErrAlreadyCollector), errors.Is(err, ledger.ErrNotCollector),
		errors.Is(err, errNoCollector):
		return "registry"
	case errors.Is(err, ledger.ErrInvalidRatio), errors.Is(err, ledger.ErrInvalidWeight),
		errors.Is(err, ledger.ErrInvalidDirection):
		return "invalid_parameter"
	default:
		return "validation"
	}
}

// postCheckInvariants re-verifies Σ balances == totalSupply after every
// supply-changing command and periodically otherwise.
func (c *DeterministicCore) postCheckInvariants(evt event.Event, sequence int64) error {
	switch evt.EventType() {
	case event.EventTypeMint, event.EventTypeBurn, event.EventTypeBurnFrom:
		return c.token.CheckInvariants()
	}
	if sequence%supplyCheckInterval == 0 {
		return c.token.CheckInvariants()
	}
	return nil
}

func (c *DeterministicCore) recordCommit(eventType string, output *CoreOutput, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
	c.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	c.metrics.CoreSequence.Set(float64(output.Envelope.Sequence))

	for _, j := range output.Batch.Journals {
		c.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
		switch j.JournalType {
		case ledger.JournalTypeTransferFee:
			c.metrics.FeesCollected.Add(j.Amount.Float64())
		case ledger.JournalTypeWithdraw, ledger.JournalTypeSweep:
			c.metrics.Withdrawals.WithLabelValues(j.JournalType.String()).Inc()
		}
	}
	for _, l := range output.Logs {
		c.metrics.CoreLogs.WithLabelValues(l.Kind.String()).Inc()
	}

	c.metrics.TotalSupply.Set(c.token.TotalSupply().Float64())
	if c.collector != nil {
		c.metrics.FeePoolBalance.Set(c.collector.PoolBalance().Float64())
	}
	if c.token.Paused() {
		c.metrics.Paused.Set(1)
	} else {
		c.metrics.Paused.Set(0)
	}
	c.metrics.DedupLRUSize.Set(float64(c.idempotency.lru.Size()))
}

// --- Accessors ---

// Token exposes the ledger state. Not safe for use outside the core's
// goroutine while it is processing.
func (c *DeterministicCore) Token() *token.Token {
	return c.token
}

// Collector returns the fee collector, or nil when none is deployed.
func (c *DeterministicCore) Collector() *fee.FeeCollector {
	return c.collector
}

// GetSequence returns the next sequence to be assigned.
func (c *DeterministicCore) GetSequence() int64 {
	return c.sequence
}

// GetStateHash returns the current state hash (chain tip).
func (c *DeterministicCore) GetStateHash() [32]byte {
	return c.hasher.GetPrevHash()
}

// ExpectedNonce returns the next nonce accepted from caller.
func (c *DeterministicCore) ExpectedNonce(caller common.Address) int64 {
	return c.sequenceValidator.GetExpectedSequence(partitionFor(caller))
}
