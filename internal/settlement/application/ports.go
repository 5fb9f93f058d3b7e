package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"retail-settlement/internal/settlement/domain"
)

// Contract is the active supply contract terms for a metering point.
type Contract struct {
	MeteringPointID             string
	Frequency                   settlement.Frequency
	BillingAnchor               time.Time
	MarginPerKWh                decimal.Decimal
	SupplementPerKWh            decimal.Decimal
	SupplierSubscriptionMonthly decimal.Decimal
}

// MeteringPoint is metering point reference data.
type MeteringPoint struct {
	ID         string
	GridArea   string
	PriceArea  string
	Resolution time.Duration
}

// ContractLookup returns the active contract, or nil when there is none.
type ContractLookup interface {
	ActiveContract(ctx context.Context, meteringPointID string) (*Contract, error)
}

// MeteringPointLookup returns metering point reference data, or nil when unknown.
type MeteringPointLookup interface {
	MeteringPoint(ctx context.Context, meteringPointID string) (*MeteringPoint, error)
}

// PeriodQuery names the data a period settlement needs.
type PeriodQuery struct {
	MeteringPointID string
	GridArea        string
	PriceArea       string
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

// GridTariffChange is a grid tariff schedule taking effect inside a period.
type GridTariffChange struct {
	EffectiveFrom time.Time
	Rates         []settlement.TariffRate
}

// SettlementData is the staged input for one period.
type SettlementData struct {
	Consumption             []settlement.ConsumptionSample
	Prices                  []settlement.PriceSample
	GridRates               []settlement.TariffRate
	SystemTariffRate        decimal.Decimal
	TransmissionTariffRate  decimal.Decimal
	ElectricityTaxRate      decimal.Decimal
	GridSubscriptionMonthly decimal.Decimal
	TariffChange            *GridTariffChange
}

// DataLoader assembles settlement inputs. It fails with
// settlement.ErrMissingRegulatedRate when a flat rate is absent for the period.
type DataLoader interface {
	Load(ctx context.Context, query PeriodQuery) (*SettlementData, error)
}

// SampleCounter counts received consumption samples in [start, end).
type SampleCounter interface {
	CountSamples(ctx context.Context, meteringPointID string, start, end time.Time) (int, error)
}

// EventPublisher emits settlement lifecycle events.
type EventPublisher interface {
	PublishSettlementCompleted(ctx context.Context, event SettlementCompleted) error
	PublishSettlementFailed(ctx context.Context, event SettlementFailed) error
}

// FailureNotifier alerts operators about failed runs.
type FailureNotifier interface {
	NotifyRunFailed(ctx context.Context, run settlement.SettlementRun) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
