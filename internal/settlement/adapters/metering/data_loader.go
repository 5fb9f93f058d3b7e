package metering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	settlementapp "retail-settlement/internal/settlement/application"
	settlement "retail-settlement/internal/settlement/domain"
)

// DataLoader stages consumption, prices and tariffs for one period from Postgres.
type DataLoader struct {
	db  *sql.DB
	loc *time.Location
}

// LoaderOption configures the loader.
type LoaderOption func(*DataLoader)

// WithLocation sets the location DATE columns and sample hours are interpreted in.
func WithLocation(loc *time.Location) LoaderOption {
	return func(loader *DataLoader) {
		if loader != nil && loc != nil {
			loader.loc = loc
		}
	}
}

// NewDataLoader constructs a loader.
func NewDataLoader(db *sql.DB, opts ...LoaderOption) (*DataLoader, error) {
	if db == nil {
		return nil, errors.New("settlement data loader: nil db")
	}
	loader := &DataLoader{db: db, loc: time.UTC}
	for _, opt := range opts {
		opt(loader)
	}
	return loader, nil
}

var regulatedCharges = []settlement.ChargeType{
	settlement.ChargeSystemTariff,
	settlement.ChargeTransmissionTariff,
	settlement.ChargeElectricityTax,
}

// Load returns the staged inputs for [PeriodStart, PeriodEnd).
func (l *DataLoader) Load(ctx context.Context, query settlementapp.PeriodQuery) (*settlementapp.SettlementData, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("settlement data loader: nil db")
	}
	if query.MeteringPointID == "" {
		return nil, settlement.ErrEmptyMeteringPointID
	}
	if query.PeriodStart.IsZero() || !query.PeriodEnd.After(query.PeriodStart) {
		return nil, settlement.ErrInvalidPeriod
	}

	consumption, err := l.consumption(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load consumption: %w", err)
	}
	prices, err := l.prices(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load spot prices: %w", err)
	}
	rates, err := l.gridRatesAt(ctx, query.GridArea, query.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("load grid tariff: %w", err)
	}
	change, err := l.gridTariffChange(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load grid tariff change: %w", err)
	}

	data := &settlementapp.SettlementData{
		Consumption:  consumption,
		Prices:       prices,
		GridRates:    rates,
		TariffChange: change,
	}
	for _, chargeType := range regulatedCharges {
		rate, err := l.regulatedRate(ctx, chargeType, query.PeriodStart)
		if err != nil {
			return nil, err
		}
		switch chargeType {
		case settlement.ChargeSystemTariff:
			data.SystemTariffRate = rate
		case settlement.ChargeTransmissionTariff:
			data.TransmissionTariffRate = rate
		case settlement.ChargeElectricityTax:
			data.ElectricityTaxRate = rate
		}
	}

	fee, err := l.gridSubscription(ctx, query.GridArea, query.PeriodStart)
	if err != nil {
		return nil, fmt.Errorf("load grid subscription: %w", err)
	}
	data.GridSubscriptionMonthly = fee
	return data, nil
}

func (l *DataLoader) consumption(ctx context.Context, query settlementapp.PeriodQuery) ([]settlement.ConsumptionSample, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT ts, resolution, kwh, quality_code, message_id
FROM metering_samples
WHERE metering_point_id = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC`, query.MeteringPointID, query.PeriodStart.UTC(), query.PeriodEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []settlement.ConsumptionSample
	for rows.Next() {
		var sample settlement.ConsumptionSample
		if err := rows.Scan(&sample.Timestamp, &sample.Resolution, &sample.KWh, &sample.QualityCode, &sample.MessageID); err != nil {
			return nil, err
		}
		// Tariff hours are local hours of the billing location.
		sample.Timestamp = sample.Timestamp.In(l.loc)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (l *DataLoader) prices(ctx context.Context, query settlementapp.PeriodQuery) ([]settlement.PriceSample, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT price_area, ts, price_per_kwh
FROM spot_prices
WHERE price_area = $1 AND ts >= $2 AND ts < $3
ORDER BY ts ASC`, query.PriceArea, query.PeriodStart.UTC(), query.PeriodEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prices []settlement.PriceSample
	for rows.Next() {
		var price settlement.PriceSample
		if err := rows.Scan(&price.PriceArea, &price.Timestamp, &price.PricePerKWh); err != nil {
			return nil, err
		}
		price.Timestamp = price.Timestamp.UTC()
		prices = append(prices, price)
	}
	return prices, rows.Err()
}

func (l *DataLoader) gridRatesAt(ctx context.Context, gridArea string, at time.Time) ([]settlement.TariffRate, error) {
	var tariffID int64
	err := l.db.QueryRowContext(ctx, `
SELECT id
FROM grid_tariffs
WHERE grid_area = $1 AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)
ORDER BY valid_from DESC
LIMIT 1`, gridArea, l.date(at)).Scan(&tariffID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no grid tariff for area %q at %s", gridArea, at.Format("2006-01-02"))
	}
	if err != nil {
		return nil, err
	}
	return l.tariffRates(ctx, tariffID)
}

// gridTariffChange returns the first tariff taking effect strictly inside the period.
func (l *DataLoader) gridTariffChange(ctx context.Context, query settlementapp.PeriodQuery) (*settlementapp.GridTariffChange, error) {
	var tariffID int64
	var validFrom time.Time
	err := l.db.QueryRowContext(ctx, `
SELECT id, valid_from
FROM grid_tariffs
WHERE grid_area = $1 AND valid_from > $2 AND valid_from < $3
ORDER BY valid_from ASC
LIMIT 1`, query.GridArea, l.date(query.PeriodStart), l.date(query.PeriodEnd)).Scan(&tariffID, &validFrom)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rates, err := l.tariffRates(ctx, tariffID)
	if err != nil {
		return nil, err
	}
	return &settlementapp.GridTariffChange{
		EffectiveFrom: l.inLocation(validFrom),
		Rates:         rates,
	}, nil
}

func (l *DataLoader) tariffRates(ctx context.Context, tariffID int64) ([]settlement.TariffRate, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT hour_number, price_per_kwh
FROM grid_tariff_rates
WHERE tariff_id = $1
ORDER BY hour_number ASC`, tariffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rates []settlement.TariffRate
	for rows.Next() {
		var rate settlement.TariffRate
		if err := rows.Scan(&rate.HourNumber, &rate.PricePerKWh); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

func (l *DataLoader) regulatedRate(ctx context.Context, chargeType settlement.ChargeType, at time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := l.db.QueryRowContext(ctx, `
SELECT rate
FROM regulated_rates
WHERE charge_type = $1 AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)
ORDER BY valid_from DESC
LIMIT 1`, string(chargeType), l.date(at)).Scan(&rate)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %s", settlement.ErrMissingRegulatedRate, chargeType)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("load %s rate: %w", chargeType, err)
	}
	return rate, nil
}

// gridSubscription is optional; areas without one bill no grid subscription.
func (l *DataLoader) gridSubscription(ctx context.Context, gridArea string, at time.Time) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := l.db.QueryRowContext(ctx, `
SELECT monthly_fee
FROM grid_subscriptions
WHERE grid_area = $1 AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)
ORDER BY valid_from DESC
LIMIT 1`, gridArea, l.date(at)).Scan(&fee)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return fee, nil
}

func (l *DataLoader) date(t time.Time) time.Time {
	t = t.In(l.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (l *DataLoader) inLocation(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, l.loc)
}
