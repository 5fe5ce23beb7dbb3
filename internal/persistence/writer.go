package persistence

import (
	"FeeLedger/internal/core"
	"FeeLedger/internal/event"
	"FeeLedger/internal/ledger"
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// EventLogWriter writes events, journals and logs to Postgres using
// multi-row INSERTs. Writes are idempotent: replays of a batch after a
// partial failure hit ON CONFLICT DO NOTHING.
type EventLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in event_log.events
type EventRow struct {
	Sequence       int64
	EventType      string
	IdempotencyKey string
	Caller         string
	SourceSequence int64
	Payload        []byte // JSON-encoded command
	StateHash      []byte
	PrevHash       []byte
	Timestamp      time.Time
}

// JournalRow represents a row in event_log.journal
type JournalRow struct {
	JournalID     string
	BatchID       string
	EventRef      string
	Sequence      int64
	DebitAccount  string
	CreditAccount string
	Amount        string // decimal
	JournalType   string
	Timestamp     int64
}

// LogRow represents a row in event_log.logs
type LogRow struct {
	Sequence int64
	Index    int
	Kind     string
	From     string
	To       string
	Value    *string // decimal, nil when the log carries no value
	Extra    []string
}

// Rows is one committed command flattened for storage.
type Rows struct {
	Event    EventRow
	Journals []JournalRow
	Logs     []LogRow
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// RowsFromOutput flattens a core output into table rows.
func RowsFromOutput(out core.CoreOutput) Rows {
	env := out.Envelope
	rows := Rows{
		Event: EventRow{
			Sequence:       env.Sequence,
			EventType:      env.EventType.String(),
			IdempotencyKey: env.IdempotencyKey,
			Caller:         addressString(env.Caller.Hex()),
			SourceSequence: env.SourceSequence,
			Payload:        env.Payload,
			StateHash:      env.StateHash[:],
			PrevHash:       env.PrevHash[:],
			Timestamp:      env.Timestamp,
		},
	}

	if out.Batch != nil {
		rows.Journals = make([]JournalRow, 0, len(out.Batch.Journals))
		for _, j := range out.Batch.Journals {
			rows.Journals = append(rows.Journals, JournalRow{
				JournalID:     j.JournalID.String(),
				BatchID:       j.BatchID.String(),
				EventRef:      j.EventRef,
				Sequence:      env.Sequence,
				DebitAccount:  j.DebitAccount.AccountPath(),
				CreditAccount: j.CreditAccount.AccountPath(),
				Amount:        j.Amount.Dec(),
				JournalType:   j.JournalType.String(),
				Timestamp:     j.Timestamp,
			})
		}
	}

	rows.Logs = make([]LogRow, 0, len(out.Logs))
	for i, l := range out.Logs {
		rows.Logs = append(rows.Logs, logRow(env.Sequence, i, l))
	}
	return rows
}

func logRow(sequence int64, index int, l ledger.Log) LogRow {
	row := LogRow{
		Sequence: sequence,
		Index:    index,
		Kind:     l.Kind.String(),
		From:     addressString(l.From.Hex()),
		To:       addressString(l.To.Hex()),
		Extra:    make([]string, len(l.Extra)),
	}
	if l.Value != nil {
		v := l.Value.Dec()
		row.Value = &v
	}
	for i, x := range l.Extra {
		row.Extra[i] = strconv.FormatUint(x, 10)
	}
	return row
}

// addressString is the storage form of an address: lower-case hex.
func addressString(hex string) string {
	return strings.ToLower(hex)
}

// WriteEventBatch writes a batch of events to event_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex Execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	const cols = 9
	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*cols)
	for i, e := range events {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			e.Sequence, e.EventType, e.IdempotencyKey, e.Caller, e.SourceSequence,
			string(e.Payload), e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query := `INSERT INTO event_log.events
		(sequence, event_type, idempotency_key, caller, source_sequence, payload, state_hash, prev_hash, timestamp)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteJournalBatch writes a batch of journal entries to event_log.journal.
func (w *EventLogWriter) WriteJournalBatch(ctx context.Context, ex Execer, journals []JournalRow) error {
	if len(journals) == 0 {
		return nil
	}

	const cols = 9
	values := make([]string, 0, len(journals))
	args := make([]any, 0, len(journals)*cols)
	for i, j := range journals {
		values = append(values, placeholders(i*cols, cols))
		args = append(args,
			j.JournalID, j.BatchID, j.EventRef, j.Sequence,
			j.DebitAccount, j.CreditAccount, j.Amount, j.JournalType, j.Timestamp,
		)
	}

	query := `INSERT INTO event_log.journal
		(journal_id, batch_id, event_ref, sequence, debit_account, credit_account, amount, journal_type, timestamp)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (journal_id) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteLogBatch writes a batch of logs to event_log.logs.
func (w *EventLogWriter) WriteLogBatch(ctx context.Context, ex Execer, logs []LogRow) error {
	if len(logs) == 0 {
		return nil
	}

	const cols = 7
	values := make([]string, 0, len(logs))
	args := make([]any, 0, len(logs)*cols)
	for i, l := range logs {
		values = append(values, placeholders(i*cols, cols))
		args = append(args, l.Sequence, l.Index, l.Kind, l.From, l.To, l.Value, pq.Array(l.Extra))
	}

	query := `INSERT INTO event_log.logs
		(sequence, log_index, kind, from_address, to_address, value, extra)
		VALUES ` + strings.Join(values, ", ") + ` ON CONFLICT (sequence, log_index) DO NOTHING`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// placeholders renders "($base+1, ..., $base+n)".
func placeholders(base, n int) string {
	var b strings.Builder
	b.WriteByte('(')
	for k := 1; k <= n; k++ {
		if k > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "$%d", base+k)
	}
	b.WriteByte(')')
	return b.String()
}

// DecodeEvent rebuilds the command stored in row.
func (row EventRow) DecodeEvent() (event.Event, error) {
	et, err := event.ParseEventType(row.EventType)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", row.Sequence, err)
	}
	evt, err := event.Decode(et, row.Payload)
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", row.Sequence, err)
	}
	return evt, nil
}
