// Package persistence appends the engine's notification events to Postgres.
// The event log is observational (the engine's in-memory state is the
// source of truth) but it gives operators and downstream indexers a durable
// record of every state change.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"RangeMarket/internal/event"
)

// EventRow is one row of rangemarket.events.
type EventRow struct {
	Sequence  uint64
	EventType string
	MarketID  uint64
	Payload   []byte // JSON-encoded event payload
	Timestamp time.Time
}

// RowFromRecord converts an emitted record to its storage form.
func RowFromRecord(r event.Record) (EventRow, error) {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return EventRow{}, fmt.Errorf("marshal payload: %w", err)
	}
	return EventRow{
		Sequence:  r.Sequence,
		EventType: r.Type.String(),
		MarketID:  r.MarketID,
		Payload:   payload,
		Timestamp: r.Timestamp,
	}, nil
}

// EventLogWriter batch-writes event rows using multi-row INSERT.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// EnsureSchema creates the event-log schema and table if absent.
func (w *EventLogWriter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS rangemarket`,
		`CREATE TABLE IF NOT EXISTS rangemarket.events (
			sequence   BIGINT PRIMARY KEY,
			event_type TEXT NOT NULL,
			market_id  BIGINT NOT NULL,
			payload    JSONB NOT NULL,
			timestamp  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_market_idx ON rangemarket.events (market_id, sequence)`,
	}
	for _, stmt := range stmts {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// WriteBatch writes a batch of events in one statement. Conflicting
// sequences are ignored so a retried batch is idempotent.
func (w *EventLogWriter) WriteBatch(ctx context.Context, rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO rangemarket.events
		(sequence, event_type, market_id, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)

	for i, r := range rows {
		base := i * 5
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5,
		))
		args = append(args, int64(r.Sequence), r.EventType, int64(r.MarketID), r.Payload, r.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (sequence) DO NOTHING`

	if _, err := w.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	return nil
}
