package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChargeType tags a settlement line.
type ChargeType string

const (
	ChargeEnergy               ChargeType = "energy"
	ChargeGridTariff           ChargeType = "grid_tariff"
	ChargeSystemTariff         ChargeType = "system_tariff"
	ChargeTransmissionTariff   ChargeType = "transmission_tariff"
	ChargeElectricityTax       ChargeType = "electricity_tax"
	ChargeGridSubscription     ChargeType = "grid_subscription"
	ChargeSupplierSubscription ChargeType = "supplier_subscription"
)

// chargeOrder is the order lines are produced and persisted in.
var chargeOrder = []ChargeType{
	ChargeEnergy,
	ChargeGridTariff,
	ChargeSystemTariff,
	ChargeTransmissionTariff,
	ChargeElectricityTax,
	ChargeGridSubscription,
	ChargeSupplierSubscription,
}

// ChargeOrder returns the stable charge type order.
func ChargeOrder() []ChargeType {
	out := make([]ChargeType, len(chargeOrder))
	copy(out, chargeOrder)
	return out
}

// IsValid reports whether the charge type is known.
func (c ChargeType) IsValid() bool {
	for _, known := range chargeOrder {
		if c == known {
			return true
		}
	}
	return false
}

// IsSubscription reports whether the charge is a fixed monthly fee.
func (c ChargeType) IsSubscription() bool {
	return c == ChargeGridSubscription || c == ChargeSupplierSubscription
}

// ConsumptionSample is one metering reading.
type ConsumptionSample struct {
	Timestamp   time.Time
	Resolution  string
	KWh         decimal.Decimal
	QualityCode string
	MessageID   string
}

// PriceSample is one spot price quote.
type PriceSample struct {
	PriceArea   string
	Timestamp   time.Time
	PricePerKWh decimal.Decimal
}

// TariffRate is the grid tariff for one hour of day (1-24).
type TariffRate struct {
	HourNumber  int
	PricePerKWh decimal.Decimal
}

// SettlementRequest carries everything needed to settle one period [PeriodStart, PeriodEnd).
type SettlementRequest struct {
	MeteringPointID string
	PeriodStart     time.Time
	PeriodEnd       time.Time

	Consumption []ConsumptionSample
	Prices      []PriceSample
	GridRates   []TariffRate

	SystemTariffRate        decimal.Decimal
	TransmissionTariffRate  decimal.Decimal
	ElectricityTaxRate      decimal.Decimal
	GridSubscriptionMonthly decimal.Decimal

	MarginPerKWh                decimal.Decimal
	SupplementPerKWh            decimal.Decimal
	SupplierSubscriptionMonthly decimal.Decimal
}

// SettlementLine is one itemized charge. Subscriptions carry no kWh.
type SettlementLine struct {
	ChargeType ChargeType
	KWh        decimal.NullDecimal
	Amount     decimal.Decimal
}

// SettlementResult is the itemized bill for one period.
type SettlementResult struct {
	MeteringPointID string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalKWh        decimal.Decimal
	Lines           []SettlementLine
	Subtotal        decimal.Decimal
	VATAmount       decimal.Decimal
	Total           decimal.Decimal
}

// Line returns the line for a charge type.
func (r SettlementResult) Line(chargeType ChargeType) (SettlementLine, bool) {
	return findLine(r.Lines, chargeType)
}

// ConsumptionDelta is a revised reading for one timestamp.
type ConsumptionDelta struct {
	Timestamp   time.Time
	PreviousKWh decimal.Decimal
	NewKWh      decimal.Decimal
}

// Delta returns NewKWh - PreviousKWh.
func (d ConsumptionDelta) Delta() decimal.Decimal {
	return d.NewKWh.Sub(d.PreviousKWh)
}

// CorrectionRequest carries revised consumption and the rates that applied to the period.
type CorrectionRequest struct {
	MeteringPointID string
	PeriodStart     time.Time
	PeriodEnd       time.Time

	Deltas    []ConsumptionDelta
	Prices    []PriceSample
	GridRates []TariffRate

	SystemTariffRate       decimal.Decimal
	TransmissionTariffRate decimal.Decimal
	ElectricityTaxRate     decimal.Decimal

	MarginPerKWh     decimal.Decimal
	SupplementPerKWh decimal.Decimal
}

// CorrectionResult holds charge (positive) or credit (negative) deltas for a period.
type CorrectionResult struct {
	MeteringPointID string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalDeltaKWh   decimal.Decimal
	Lines           []SettlementLine
	Subtotal        decimal.Decimal
	VATAmount       decimal.Decimal
	Total           decimal.Decimal
}

// Line returns the line for a charge type.
func (r CorrectionResult) Line(chargeType ChargeType) (SettlementLine, bool) {
	return findLine(r.Lines, chargeType)
}

func findLine(lines []SettlementLine, chargeType ChargeType) (SettlementLine, bool) {
	for _, line := range lines {
		if line.ChargeType == chargeType {
			return line, true
		}
	}
	return SettlementLine{}, false
}
