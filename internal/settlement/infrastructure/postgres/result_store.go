package postgres

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"retail-settlement/internal/observability/metrics"
	"retail-settlement/internal/platform/keylock"
	settlement "retail-settlement/internal/settlement/domain"
)

const uniqueViolation = "23505"

// ResultStore persists settlement runs. Writes for one metering point period are
// serialized through the locker; the partial unique index on completed runs backs it up.
type ResultStore struct {
	db       *sql.DB
	locker   keylock.Locker
	location *time.Location
	logger   *log.Logger
	now      func() time.Time
}

// ResultStoreOption configures ResultStore.
type ResultStoreOption func(*ResultStore)

// WithLocation sets the zone period dates are returned in.
func WithLocation(loc *time.Location) ResultStoreOption {
	return func(s *ResultStore) {
		if loc != nil {
			s.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ResultStoreOption {
	return func(s *ResultStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewResultStore constructs a store.
func NewResultStore(db *sql.DB, locker keylock.Locker, opts ...ResultStoreOption) (*ResultStore, error) {
	if db == nil {
		return nil, errors.New("result store: nil db")
	}
	if locker == nil {
		return nil, errors.New("result store: nil locker")
	}
	s := &ResultStore{
		db:       db,
		locker:   locker,
		location: time.UTC,
		logger:   log.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Store records a completed run with its lines and allocated VAT.
func (s *ResultStore) Store(ctx context.Context, meteringPointID, gridArea string, result settlement.SettlementResult, frequency settlement.Frequency) (*settlement.SettlementRun, error) {
	if err := validate(meteringPointID, result.PeriodStart, result.PeriodEnd); err != nil {
		return nil, err
	}
	now := s.now()
	run := &settlement.SettlementRun{
		ID:              uuid.NewString(),
		MeteringPointID: meteringPointID,
		GridArea:        gridArea,
		PeriodStart:     result.PeriodStart,
		PeriodEnd:       result.PeriodEnd,
		Frequency:       frequency,
		Status:          settlement.RunStatusCompleted,
		TotalKWh:        result.TotalKWh,
		Subtotal:        result.Subtotal,
		VATAmount:       result.VATAmount,
		Total:           result.Total,
		ExecutedAt:      now,
		CompletedAt:     now,
	}
	lines := settlement.BuildRunLines(run.ID, result)

	err := s.withPeriodLock(ctx, run, func(tx *sql.Tx) error {
		settled, err := completedExists(ctx, tx, meteringPointID, run.BillingPeriodID)
		if err != nil {
			return err
		}
		if settled {
			return settlement.ErrAlreadySettled
		}
		if err := insertRun(ctx, tx, run); err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO settlement_lines (run_id, position, charge_type, kwh, amount, vat_amount)
VALUES ($1,$2,$3,$4,$5,$6)`,
				line.RunID, line.Position, string(line.ChargeType), line.KWh, line.Amount, line.VATAmount); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRun(string(settlement.RunStatusCompleted))
	return run, nil
}

// StoreFailed records a failed run without lines.
func (s *ResultStore) StoreFailed(ctx context.Context, meteringPointID, gridArea string, periodStart, periodEnd time.Time, frequency settlement.Frequency, errorDetail string) (*settlement.SettlementRun, error) {
	if err := validate(meteringPointID, periodStart, periodEnd); err != nil {
		return nil, err
	}
	run := &settlement.SettlementRun{
		ID:              uuid.NewString(),
		MeteringPointID: meteringPointID,
		GridArea:        gridArea,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		Frequency:       frequency,
		Status:          settlement.RunStatusFailed,
		ErrorDetail:     errorDetail,
		ExecutedAt:      s.now(),
	}
	if err := s.withPeriodLock(ctx, run, func(tx *sql.Tx) error {
		return insertRun(ctx, tx, run)
	}); err != nil {
		return nil, err
	}
	metrics.IncRun(string(settlement.RunStatusFailed))
	return run, nil
}

// HasRun reports whether a completed run exists for the period.
func (s *ResultStore) HasRun(ctx context.Context, meteringPointID string, periodStart, periodEnd time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM settlement_runs r
	JOIN billing_periods p ON p.id = r.billing_period_id
	WHERE r.metering_point_id = $1 AND p.period_start = $2 AND p.period_end = $3
		AND r.status = 'completed'
)`, meteringPointID, dateOnly(periodStart), dateOnly(periodEnd)).Scan(&exists)
	return exists, err
}

// withPeriodLock upserts the billing period, assigns the next version and runs fn
// in one transaction while holding the period lock.
func (s *ResultStore) withPeriodLock(ctx context.Context, run *settlement.SettlementRun, fn func(tx *sql.Tx) error) error {
	waitStart := time.Now()
	unlock, err := s.locker.Lock(ctx, settlement.PeriodKey(run.MeteringPointID, run.PeriodStart, run.PeriodEnd))
	if err != nil {
		return err
	}
	defer unlock()
	metrics.ObserveLockWait(time.Since(waitStart))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	periodID, err := upsertPeriod(ctx, tx, run.PeriodStart, run.PeriodEnd, run.Frequency, s.now())
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	run.BillingPeriodID = periodID

	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(version), 0) + 1
FROM settlement_runs
WHERE metering_point_id = $1 AND billing_period_id = $2`, run.MeteringPointID, periodID).Scan(&run.Version); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	return nil
}

func upsertPeriod(ctx context.Context, tx *sql.Tx, start, end time.Time, frequency settlement.Frequency, now time.Time) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `
INSERT INTO billing_periods (period_start, period_end, frequency, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (period_start, period_end) DO UPDATE SET
	frequency = EXCLUDED.frequency,
	updated_at = CASE
		WHEN billing_periods.frequency <> EXCLUDED.frequency THEN EXCLUDED.updated_at
		ELSE billing_periods.updated_at
	END
RETURNING id`, dateOnly(start), dateOnly(end), string(frequency), now).Scan(&id)
	return id, err
}

func completedExists(ctx context.Context, tx *sql.Tx, meteringPointID string, periodID int64) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM settlement_runs
	WHERE metering_point_id = $1 AND billing_period_id = $2 AND status = 'completed'
)`, meteringPointID, periodID).Scan(&exists)
	return exists, err
}

func insertRun(ctx context.Context, tx *sql.Tx, run *settlement.SettlementRun) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO settlement_runs (
	id, metering_point_id, grid_area, billing_period_id, version, status, error_detail,
	total_kwh, subtotal, vat_amount, total, executed_at, completed_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`,
		run.ID, run.MeteringPointID, run.GridArea, run.BillingPeriodID, run.Version, string(run.Status),
		nullString(run.ErrorDetail), run.TotalKWh, run.Subtotal, run.VATAmount, run.Total,
		run.ExecutedAt, nullTime(run.CompletedAt),
	)
	return err
}

// translate maps a race on the completed-run index to ErrAlreadySettled.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "settlement_runs_completed_uniq" {
		return settlement.ErrAlreadySettled
	}
	return err
}

func validate(meteringPointID string, start, end time.Time) error {
	if meteringPointID == "" {
		return settlement.ErrEmptyMeteringPointID
	}
	if start.IsZero() || !end.After(start) {
		return settlement.ErrInvalidPeriod
	}
	return nil
}

// dateOnly keeps the calendar date of t for DATE columns.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}
