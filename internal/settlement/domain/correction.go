package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// CalculateCorrection prices revised consumption for an already settled period.
// Negative deltas produce credits and stay negative through to the total.
// Subscriptions are never corrected.
func CalculateCorrection(req CorrectionRequest) CorrectionResult {
	totalDelta, lines := correctionLines(req.Deltas, req)
	return newCorrectionResult(req, totalDelta, lines)
}

// CalculateCorrectionWithTariffChange prices deltas before splitAt with req.GridRates
// and the rest with newGridRates, merging lines before VAT like CalculateWithTariffChange.
func CalculateCorrectionWithTariffChange(req CorrectionRequest, splitAt time.Time, newGridRates []TariffRate) CorrectionResult {
	var before, after []ConsumptionDelta
	for _, delta := range req.Deltas {
		if delta.Timestamp.Before(splitAt) {
			before = append(before, delta)
		} else {
			after = append(after, delta)
		}
	}

	deltaBefore, linesBefore := correctionLines(before, req)
	afterReq := req
	afterReq.GridRates = newGridRates
	deltaAfter, linesAfter := correctionLines(after, afterReq)

	return newCorrectionResult(req, deltaBefore.Add(deltaAfter), mergeLines(linesBefore, linesAfter))
}

func correctionLines(deltas []ConsumptionDelta, req CorrectionRequest) (decimal.Decimal, []SettlementLine) {
	prices := indexPrices(req.Prices)
	rates := indexGridRates(req.GridRates)
	adder := req.MarginPerKWh.Add(req.SupplementPerKWh)

	totalDelta := decimal.Zero
	energy := decimal.Zero
	grid := decimal.Zero
	for _, delta := range deltas {
		dKWh := delta.Delta()
		totalDelta = totalDelta.Add(dKWh)
		if spot, ok := prices[priceKey(delta.Timestamp)]; ok {
			energy = energy.Add(dKWh.Mul(spot.Add(adder)))
		}
		if rate, ok := rates[HourNumber(delta.Timestamp)]; ok {
			grid = grid.Add(dKWh.Mul(rate))
		}
	}

	return totalDelta, []SettlementLine{
		kwhLine(ChargeEnergy, totalDelta, energy),
		kwhLine(ChargeGridTariff, totalDelta, grid),
		kwhLine(ChargeSystemTariff, totalDelta, totalDelta.Mul(req.SystemTariffRate)),
		kwhLine(ChargeTransmissionTariff, totalDelta, totalDelta.Mul(req.TransmissionTariffRate)),
		kwhLine(ChargeElectricityTax, totalDelta, totalDelta.Mul(req.ElectricityTaxRate)),
	}
}

func newCorrectionResult(req CorrectionRequest, totalDelta decimal.Decimal, lines []SettlementLine) CorrectionResult {
	subtotal := sumAmounts(lines)
	vat := VATFor(subtotal)
	return CorrectionResult{
		MeteringPointID: req.MeteringPointID,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		TotalDeltaKWh:   totalDelta,
		Lines:           lines,
		Subtotal:        subtotal,
		VATAmount:       vat,
		Total:           subtotal.Add(vat),
	}
}
