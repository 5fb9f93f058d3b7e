package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retail-settlement/internal/eventing"
)

const (
	defaultOutboxTable    = "event_outbox"
	defaultDLQTable       = "dead_letter_events"
	defaultProcessedTable = "processed_events"
)

// OutboxStore persists envelopes in the transactional outbox.
type OutboxStore struct {
	db    *sql.DB
	table string
	now   func() time.Time
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// WithOutboxClock overrides the clock used for sent_at.
func WithOutboxClock(now func() time.Time) OutboxOption {
	return func(store *OutboxStore) {
		if now != nil {
			store.now = now
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert writes an envelope as a pending record. Re-inserting an event id is a no-op.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("outbox store: nil db")
	}
	if env.EventID == "" {
		return "", errors.New("outbox store: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	outboxID := eventing.NewEventID()
	query := fmt.Sprintf(`
INSERT INTO %s (id, event_id, event_type, payload, status, attempts, created_at)
VALUES ($1, $2, $3, $4, 'pending', 0, $5)
ON CONFLICT (event_id) DO NOTHING`, s.table)
	res, err := s.db.ExecContext(ctx, query, outboxID, env.EventID, env.EventType, payload, s.now().UTC())
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return "", nil
	}
	return outboxID, nil
}

// ListPending returns the oldest pending records.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, payload
FROM %s
WHERE status = 'pending'
ORDER BY created_at ASC
LIMIT $1`, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []eventing.OutboxRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
			env     eventing.Envelope
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, fmt.Errorf("outbox store: decode %s: %w", id, err)
		}
		records = append(records, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	return records, rows.Err()
}

// MarkSent marks a record as delivered.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'sent', sent_at = $1, attempts = attempts + 1 WHERE id = $2`, s.table), s.now().UTC(), id)
	return err
}

// MarkFailed marks a record as failed.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s SET status = 'failed', attempts = attempts + 1 WHERE id = $1`, s.table), id)
	return err
}
