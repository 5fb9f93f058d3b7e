package settlement

import (
	"testing"
	"time"
)

func flatGridRates(rate string) []TariffRate {
	rates := make([]TariffRate, 0, 24)
	for h := 1; h <= 24; h++ {
		rates = append(rates, TariffRate{HourNumber: h, PricePerKWh: dec(rate)})
	}
	return rates
}

func twoDayRequest() SettlementRequest {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	req := SettlementRequest{
		MeteringPointID:             "571313100000000001",
		PeriodStart:                 start,
		PeriodEnd:                   start.AddDate(0, 0, 2),
		GridRates:                   flatGridRates("0.10"),
		SystemTariffRate:            dec("0.054"),
		TransmissionTariffRate:      dec("0.049"),
		ElectricityTaxRate:          dec("0.008"),
		GridSubscriptionMonthly:     dec("49.00"),
		MarginPerKWh:                dec("0.04"),
		SupplierSubscriptionMonthly: dec("39.00"),
	}
	for h := 0; h < 48; h++ {
		ts := start.Add(time.Duration(h) * time.Hour)
		req.Consumption = append(req.Consumption, ConsumptionSample{Timestamp: ts, Resolution: "PT1H", KWh: dec("0.5")})
		req.Prices = append(req.Prices, PriceSample{PriceArea: "DK1", Timestamp: ts, PricePerKWh: dec("0.80")})
	}
	return req
}

func TestCalculateWithTariffChange(t *testing.T) {
	req := twoDayRequest()
	splitAt := req.PeriodStart.Add(24 * time.Hour)

	split := CalculateWithTariffChange(req, splitAt, flatGridRates("0.30"))
	flat := Calculate(req)

	if !split.Total.GreaterThan(flat.Total) {
		t.Fatalf("expected split total %s > flat total %s", split.Total, flat.Total)
	}
	assertAmount(t, "total kwh", split.TotalKWh, "24.0")
	assertLine(t, split, ChargeGridTariff, "4.80")
	assertTotals(t, split.Subtotal, split.VATAmount, split.Total)
	if !split.PeriodStart.Equal(req.PeriodStart) || !split.PeriodEnd.Equal(req.PeriodEnd) {
		t.Fatalf("expected full period, got %s - %s", split.PeriodStart, split.PeriodEnd)
	}

	// subscriptions are pro-rated once over the two days.
	assertLine(t, split, ChargeGridSubscription, flat.Lines[5].Amount.String())
	assertLine(t, split, ChargeSupplierSubscription, flat.Lines[6].Amount.String())
	if len(split.Lines) != len(ChargeOrder()) {
		t.Fatalf("expected merged lines, got %d", len(split.Lines))
	}
}

func TestCalculateWithTariffChangeOutsidePeriod(t *testing.T) {
	req := twoDayRequest()

	atStart := CalculateWithTariffChange(req, req.PeriodStart, flatGridRates("0.30"))
	assertLine(t, atStart, ChargeGridTariff, "7.20")

	afterEnd := CalculateWithTariffChange(req, req.PeriodEnd.Add(time.Hour), flatGridRates("0.30"))
	assertLine(t, afterEnd, ChargeGridTariff, "2.40")
}
