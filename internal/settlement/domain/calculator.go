package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// Calculate settles one period. It never fails: an hour without a spot price or
// grid rate contributes nothing to that charge.
func Calculate(req SettlementRequest) SettlementResult {
	totalKWh, lines := usageLines(req)
	lines = append(lines, subscriptionLines(req.PeriodStart, req.PeriodEnd, req.GridSubscriptionMonthly, req.SupplierSubscriptionMonthly)...)
	return newResult(req.MeteringPointID, req.PeriodStart, req.PeriodEnd, totalKWh, lines)
}

// usageLines returns the kWh-driven lines (energy, grid tariff, flat rates), each rounded.
func usageLines(req SettlementRequest) (decimal.Decimal, []SettlementLine) {
	prices := indexPrices(req.Prices)
	rates := indexGridRates(req.GridRates)
	adder := req.MarginPerKWh.Add(req.SupplementPerKWh)

	totalKWh := decimal.Zero
	energy := decimal.Zero
	grid := decimal.Zero
	for _, sample := range req.Consumption {
		totalKWh = totalKWh.Add(sample.KWh)
		if spot, ok := prices[priceKey(sample.Timestamp)]; ok {
			energy = energy.Add(sample.KWh.Mul(spot.Add(adder)))
		}
		if rate, ok := rates[HourNumber(sample.Timestamp)]; ok {
			grid = grid.Add(sample.KWh.Mul(rate))
		}
	}

	return totalKWh, []SettlementLine{
		kwhLine(ChargeEnergy, totalKWh, energy),
		kwhLine(ChargeGridTariff, totalKWh, grid),
		kwhLine(ChargeSystemTariff, totalKWh, totalKWh.Mul(req.SystemTariffRate)),
		kwhLine(ChargeTransmissionTariff, totalKWh, totalKWh.Mul(req.TransmissionTariffRate)),
		kwhLine(ChargeElectricityTax, totalKWh, totalKWh.Mul(req.ElectricityTaxRate)),
	}
}

func subscriptionLines(start, end time.Time, gridMonthly, supplierMonthly decimal.Decimal) []SettlementLine {
	factor := ProRataFactor(start, end)
	return []SettlementLine{
		{ChargeType: ChargeGridSubscription, Amount: RoundAmount(gridMonthly.Mul(factor))},
		{ChargeType: ChargeSupplierSubscription, Amount: RoundAmount(supplierMonthly.Mul(factor))},
	}
}

func kwhLine(chargeType ChargeType, kwh, amount decimal.Decimal) SettlementLine {
	return SettlementLine{
		ChargeType: chargeType,
		KWh:        decimal.NewNullDecimal(kwh),
		Amount:     RoundAmount(amount),
	}
}

// newResult sums already rounded lines; the subtotal is never rounded again.
func newResult(meteringPointID string, start, end time.Time, totalKWh decimal.Decimal, lines []SettlementLine) SettlementResult {
	subtotal := sumAmounts(lines)
	vat := VATFor(subtotal)
	return SettlementResult{
		MeteringPointID: meteringPointID,
		PeriodStart:     start,
		PeriodEnd:       end,
		TotalKWh:        totalKWh,
		Lines:           lines,
		Subtotal:        subtotal,
		VATAmount:       vat,
		Total:           subtotal.Add(vat),
	}
}

func priceKey(ts time.Time) int64 {
	return ts.Unix()
}

func indexPrices(prices []PriceSample) map[int64]decimal.Decimal {
	index := make(map[int64]decimal.Decimal, len(prices))
	for _, price := range prices {
		index[priceKey(price.Timestamp)] = price.PricePerKWh
	}
	return index
}

func indexGridRates(rates []TariffRate) map[int]decimal.Decimal {
	index := make(map[int]decimal.Decimal, len(rates))
	for _, rate := range rates {
		if rate.HourNumber < 1 || rate.HourNumber > 24 {
			continue
		}
		index[rate.HourNumber] = rate.PricePerKWh
	}
	return index
}
