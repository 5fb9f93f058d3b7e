package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculateWithTariffChange settles a period whose grid tariff schedule changes at splitAt.
// Samples before splitAt are priced with req.GridRates, the rest with newGridRates.
// Lines are merged per charge type, subscriptions are pro-rated once over the whole
// period and VAT is computed once on the combined subtotal.
func CalculateWithTariffChange(req SettlementRequest, splitAt time.Time, newGridRates []TariffRate) SettlementResult {
	if !splitAt.After(req.PeriodStart) {
		req.GridRates = newGridRates
		return Calculate(req)
	}
	if !splitAt.Before(req.PeriodEnd) {
		return Calculate(req)
	}

	before := req
	before.PeriodEnd = splitAt
	before.Consumption, req.Consumption = splitConsumption(req.Consumption, splitAt)
	before.Prices, req.Prices = splitPrices(req.Prices, splitAt)

	after := req
	after.PeriodStart = splitAt
	after.GridRates = newGridRates

	kwhBefore, linesBefore := usageLines(before)
	kwhAfter, linesAfter := usageLines(after)

	lines := mergeLines(linesBefore, linesAfter)
	lines = append(lines, subscriptionLines(req.PeriodStart, req.PeriodEnd, req.GridSubscriptionMonthly, req.SupplierSubscriptionMonthly)...)
	return newResult(req.MeteringPointID, req.PeriodStart, req.PeriodEnd, kwhBefore.Add(kwhAfter), lines)
}

func splitConsumption(samples []ConsumptionSample, splitAt time.Time) ([]ConsumptionSample, []ConsumptionSample) {
	var before, after []ConsumptionSample
	for _, sample := range samples {
		if sample.Timestamp.Before(splitAt) {
			before = append(before, sample)
		} else {
			after = append(after, sample)
		}
	}
	return before, after
}

func splitPrices(prices []PriceSample, splitAt time.Time) ([]PriceSample, []PriceSample) {
	var before, after []PriceSample
	for _, price := range prices {
		if price.Timestamp.Before(splitAt) {
			before = append(before, price)
		} else {
			after = append(after, price)
		}
	}
	return before, after
}

// mergeLines sums amounts and kWh per charge type, keeping the stable charge order.
func mergeLines(sets ...[]SettlementLine) []SettlementLine {
	type acc struct {
		kwh    decimal.NullDecimal
		amount decimal.Decimal
		seen   bool
	}
	byType := make(map[ChargeType]*acc, len(chargeOrder))
	for _, lines := range sets {
		for _, line := range lines {
			a := byType[line.ChargeType]
			if a == nil {
				a = &acc{}
				byType[line.ChargeType] = a
			}
			a.seen = true
			a.amount = a.amount.Add(line.Amount)
			if line.KWh.Valid {
				if a.kwh.Valid {
					a.kwh.Decimal = a.kwh.Decimal.Add(line.KWh.Decimal)
				} else {
					a.kwh = line.KWh
				}
			}
		}
	}

	merged := make([]SettlementLine, 0, len(byType))
	for _, chargeType := range chargeOrder {
		a := byType[chargeType]
		if a == nil || !a.seen {
			continue
		}
		merged = append(merged, SettlementLine{ChargeType: chargeType, KWh: a.kwh, Amount: a.amount})
	}
	return merged
}
