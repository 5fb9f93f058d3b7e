package contracts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	settlementapp "retail-settlement/internal/settlement/application"
	settlement "retail-settlement/internal/settlement/domain"
)

// Lookup reads contracts and metering point reference data from Postgres.
type Lookup struct {
	db  *sql.DB
	loc *time.Location
}

// NewLookup constructs a lookup. Contract anchors are returned in loc.
func NewLookup(db *sql.DB, loc *time.Location) (*Lookup, error) {
	if db == nil {
		return nil, errors.New("contract lookup: nil db")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Lookup{db: db, loc: loc}, nil
}

// ActiveContract returns the newest active contract, or nil.
func (l *Lookup) ActiveContract(ctx context.Context, meteringPointID string) (*settlementapp.Contract, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("contract lookup: nil db")
	}
	var (
		frequency string
		anchor    time.Time
		contract  settlementapp.Contract
	)
	err := l.db.QueryRowContext(ctx, `
SELECT metering_point_id, billing_frequency, billing_anchor, margin_per_kwh, supplement_per_kwh, supplier_subscription_monthly
FROM supply_contracts
WHERE metering_point_id = $1 AND status = 'active'
ORDER BY created_at DESC
LIMIT 1`, meteringPointID).Scan(
		&contract.MeteringPointID,
		&frequency,
		&anchor,
		&contract.MarginPerKWh,
		&contract.SupplementPerKWh,
		&contract.SupplierSubscriptionMonthly,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// Unknown frequencies are returned by the orchestrator as ErrInvalidFrequency; no run is recorded.
	contract.Frequency = settlement.Frequency(strings.ToLower(strings.TrimSpace(frequency)))
	contract.BillingAnchor = time.Date(anchor.Year(), anchor.Month(), anchor.Day(), 0, 0, 0, 0, l.loc)
	return &contract, nil
}

// MeteringPoint returns metering point reference data, or nil.
func (l *Lookup) MeteringPoint(ctx context.Context, meteringPointID string) (*settlementapp.MeteringPoint, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("contract lookup: nil db")
	}
	var (
		mp         settlementapp.MeteringPoint
		resolution string
	)
	err := l.db.QueryRowContext(ctx, `
SELECT id, grid_area, price_area, resolution
FROM metering_points
WHERE id = $1`, meteringPointID).Scan(&mp.ID, &mp.GridArea, &mp.PriceArea, &resolution)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	mp.Resolution, err = ParseResolution(resolution)
	if err != nil {
		return nil, err
	}
	return &mp, nil
}

// ParseResolution parses the ISO 8601 sample resolutions used by metering data (PT1H, PT15M).
func ParseResolution(value string) (time.Duration, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "", "PT1H", "PT60M":
		return time.Hour, nil
	case "PT15M":
		return 15 * time.Minute, nil
	case "PT30M":
		return 30 * time.Minute, nil
	default:
		return 0, fmt.Errorf("contract lookup: unsupported resolution %q", value)
	}
}
