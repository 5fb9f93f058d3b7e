package settlement

import "github.com/shopspring/decimal"

// AllocateVAT distributes totalVAT over lines in proportion to their amounts.
// The last line absorbs the rounding remainder so the shares always sum to totalVAT.
// The returned slice is parallel to lines.
func AllocateVAT(lines []SettlementLine, subtotal, totalVAT decimal.Decimal) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(lines))
	for i := range shares {
		shares[i] = decimal.Zero
	}
	if len(lines) == 0 || subtotal.IsZero() {
		return shares
	}

	allocated := decimal.Zero
	last := len(lines) - 1
	for i := 0; i < last; i++ {
		share := RoundAmount(lines[i].Amount.Div(subtotal).Mul(totalVAT))
		shares[i] = share
		allocated = allocated.Add(share)
	}
	shares[last] = totalVAT.Sub(allocated)
	return shares
}
