package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log"
	"time"

	"retail-settlement/internal/platform/keylock"
)

// AdvisoryLocker implements keylock.Locker with Postgres session advisory locks.
// Each held lock pins one pooled connection until released.
type AdvisoryLocker struct {
	db     *sql.DB
	logger *log.Logger
}

// NewAdvisoryLocker constructs an AdvisoryLocker.
func NewAdvisoryLocker(db *sql.DB, logger *log.Logger) (*AdvisoryLocker, error) {
	if db == nil {
		return nil, errors.New("advisory locker: nil db")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &AdvisoryLocker{db: db, logger: logger}, nil
}

// Lock blocks on pg_advisory_lock for the hashed key.
func (l *AdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, keylock.ErrEmptyKey
	}
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	lockID := keylock.HashKey(key)
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, lockID); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.ExecContext(releaseCtx, `SELECT pg_advisory_unlock($1)`, lockID); err != nil {
			l.logger.Printf("event=advisory_unlock_failed key=%s error=%v", key, err)
			// drop the session so the server releases the lock
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}, nil
}
