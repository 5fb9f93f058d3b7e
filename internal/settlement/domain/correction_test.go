package settlement

import (
	"testing"
	"time"
)

func TestCalculateCorrectionCredit(t *testing.T) {
	ts := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	req := CorrectionRequest{
		MeteringPointID: "571313100000000001",
		PeriodStart:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:       time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		Deltas: []ConsumptionDelta{
			{Timestamp: ts, PreviousKWh: dec("1.0"), NewKWh: dec("0.5")},
		},
		Prices:                 []PriceSample{{PriceArea: "DK1", Timestamp: ts, PricePerKWh: dec("1.00")}},
		GridRates:              []TariffRate{{HourNumber: 9, PricePerKWh: dec("0.20")}},
		SystemTariffRate:       dec("0.054"),
		TransmissionTariffRate: dec("0.049"),
		ElectricityTaxRate:     dec("0.008"),
		MarginPerKWh:           dec("0.04"),
	}

	result := CalculateCorrection(req)

	assertAmount(t, "delta kwh", result.TotalDeltaKWh, "-0.5")
	energy, _ := result.Line(ChargeEnergy)
	assertAmount(t, "energy", energy.Amount, "-0.52")
	grid, _ := result.Line(ChargeGridTariff)
	assertAmount(t, "grid", grid.Amount, "-0.10")
	if !result.Total.IsNegative() {
		t.Fatalf("expected credit, got %s", result.Total)
	}
	assertTotals(t, result.Subtotal, result.VATAmount, result.Total)
}

func TestCalculateCorrectionHasNoSubscriptions(t *testing.T) {
	ts := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	result := CalculateCorrection(CorrectionRequest{
		Deltas:           []ConsumptionDelta{{Timestamp: ts, PreviousKWh: dec("0.2"), NewKWh: dec("0.7")}},
		SystemTariffRate: dec("0.054"),
	})

	if len(result.Lines) != 5 {
		t.Fatalf("expected 5 lines, got %d", len(result.Lines))
	}
	for _, line := range result.Lines {
		if line.ChargeType.IsSubscription() {
			t.Fatalf("unexpected subscription line %s", line.ChargeType)
		}
	}
	assertAmount(t, "delta kwh", result.TotalDeltaKWh, "0.5")
	assertTotals(t, result.Subtotal, result.VATAmount, result.Total)
}

func TestCalculateCorrectionWithTariffChange(t *testing.T) {
	day1 := time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	req := CorrectionRequest{
		Deltas: []ConsumptionDelta{
			{Timestamp: day1, PreviousKWh: dec("0"), NewKWh: dec("1")},
			{Timestamp: day2, PreviousKWh: dec("0"), NewKWh: dec("1")},
		},
		GridRates: flatGridRates("0.10"),
	}

	result := CalculateCorrectionWithTariffChange(req, day2.Add(-time.Hour), flatGridRates("0.30"))

	grid, _ := result.Line(ChargeGridTariff)
	assertAmount(t, "grid", grid.Amount, "0.40")
	assertAmount(t, "delta kwh", result.TotalDeltaKWh, "2")
	assertTotals(t, result.Subtotal, result.VATAmount, result.Total)
}
