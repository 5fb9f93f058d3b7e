package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	settlement "retail-settlement/internal/settlement/domain"
)

const runColumns = `
	r.id, r.metering_point_id, r.grid_area, r.billing_period_id, p.period_start, p.period_end,
	p.frequency, r.version, r.status, r.error_detail, r.total_kwh, r.subtotal, r.vat_amount,
	r.total, r.executed_at, r.completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// ListRuns returns every run for a metering point, newest period and version first.
func (s *ResultStore) ListRuns(ctx context.Context, meteringPointID string) ([]settlement.SettlementRun, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT`+runColumns+`
FROM settlement_runs r
JOIN billing_periods p ON p.id = r.billing_period_id
WHERE r.metering_point_id = $1
ORDER BY p.period_start DESC, r.version DESC`, meteringPointID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.SettlementRun
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetRun returns a run with its lines, or settlement.ErrRunNotFound.
func (s *ResultStore) GetRun(ctx context.Context, runID string) (*settlement.SettlementRun, []settlement.RunLine, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT`+runColumns+`
FROM settlement_runs r
JOIN billing_periods p ON p.id = r.billing_period_id
WHERE r.id::text = $1`, runID)
	run, err := s.scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, settlement.ErrRunNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.listLines(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, lines, nil
}

// LatestCompletedRun returns the completed run for a period, or nil when unsettled.
func (s *ResultStore) LatestCompletedRun(ctx context.Context, meteringPointID string, periodStart, periodEnd time.Time) (*settlement.SettlementRun, []settlement.RunLine, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT`+runColumns+`
FROM settlement_runs r
JOIN billing_periods p ON p.id = r.billing_period_id
WHERE r.metering_point_id = $1 AND p.period_start = $2 AND p.period_end = $3
	AND r.status = 'completed'
ORDER BY r.version DESC
LIMIT 1`, meteringPointID, dateOnly(periodStart), dateOnly(periodEnd))
	run, err := s.scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	lines, err := s.listLines(ctx, run.ID)
	if err != nil {
		return nil, nil, err
	}
	return run, lines, nil
}

func (s *ResultStore) listLines(ctx context.Context, runID string) ([]settlement.RunLine, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, position, charge_type, kwh, amount, vat_amount
FROM settlement_lines
WHERE run_id::text = $1
ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.RunLine
	for rows.Next() {
		var line settlement.RunLine
		var chargeType string
		if err := rows.Scan(&line.RunID, &line.Position, &chargeType, &line.KWh, &line.Amount, &line.VATAmount); err != nil {
			return nil, err
		}
		line.ChargeType = settlement.ChargeType(chargeType)
		result = append(result, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *ResultStore) scanRun(row rowScanner) (*settlement.SettlementRun, error) {
	var run settlement.SettlementRun
	var frequency, status string
	var errorDetail sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(
		&run.ID, &run.MeteringPointID, &run.GridArea, &run.BillingPeriodID, &run.PeriodStart, &run.PeriodEnd,
		&frequency, &run.Version, &status, &errorDetail, &run.TotalKWh, &run.Subtotal, &run.VATAmount,
		&run.Total, &run.ExecutedAt, &completedAt,
	); err != nil {
		return nil, err
	}
	run.Frequency = settlement.Frequency(frequency)
	run.Status = settlement.RunStatus(status)
	run.ErrorDetail = errorDetail.String
	run.PeriodStart = s.inLocation(run.PeriodStart)
	run.PeriodEnd = s.inLocation(run.PeriodEnd)
	run.ExecutedAt = run.ExecutedAt.UTC()
	if completedAt.Valid {
		run.CompletedAt = completedAt.Time.UTC()
	}
	return &run, nil
}

// inLocation maps a DATE column back to midnight in the store's zone.
func (s *ResultStore) inLocation(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.location)
}
