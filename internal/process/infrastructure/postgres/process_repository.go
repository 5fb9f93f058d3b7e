package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	process "retail-settlement/internal/process/domain"
)

// ErrStaleProcess is returned when the process changed state concurrently.
var ErrStaleProcess = errors.New("process repo: stale state")

// ProcessRepository reads and updates market processes.
type ProcessRepository struct {
	db *sql.DB
}

// NewProcessRepository constructs a repository.
func NewProcessRepository(db *sql.DB) (*ProcessRepository, error) {
	if db == nil {
		return nil, errors.New("process repo: nil db")
	}
	return &ProcessRepository{db: db}, nil
}

// Get returns the process, or nil when unknown.
func (r *ProcessRepository) Get(ctx context.Context, id string) (*process.MarketProcess, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("process repo: nil db")
	}
	var (
		p     process.MarketProcess
		state string
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, metering_point_id, process_type, state, updated_at
FROM market_processes
WHERE id = $1`, id).Scan(&p.ID, &p.MeteringPointID, &p.ProcessType, &state, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.State = process.State(state)
	return &p, nil
}

// UpdateState moves the process from `from` to `to`, failing when it is no longer in `from`.
func (r *ProcessRepository) UpdateState(ctx context.Context, id string, from, to process.State, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("process repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE market_processes
SET state = $1, updated_at = $2
WHERE id = $3 AND state = $4`, string(to), at.UTC(), id, string(from))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrStaleProcess
	}
	return nil
}

// ListSettleable returns metering points with a process in a settlement-triggering state.
func (r *ProcessRepository) ListSettleable(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("process repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT metering_point_id
FROM market_processes
WHERE state IN ($1, $2)
ORDER BY metering_point_id`, string(process.StateCompleted), string(process.StateOffboarding))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
