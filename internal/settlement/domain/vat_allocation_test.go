package settlement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func sumShares(shares []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, s := range shares {
		total = total.Add(s)
	}
	return total
}

func TestAllocateVATSumsExactly(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	result := Calculate(profileRequest(start, start.AddDate(0, 1, 0), januaryProfile))

	shares := AllocateVAT(result.Lines, result.Subtotal, result.VATAmount)
	if len(shares) != len(result.Lines) {
		t.Fatalf("expected %d shares, got %d", len(result.Lines), len(shares))
	}
	if !sumShares(shares).Equal(result.VATAmount) {
		t.Fatalf("shares sum %s != vat %s", sumShares(shares), result.VATAmount)
	}
}

func TestAllocateVATLastLineAbsorbsRemainder(t *testing.T) {
	lines := []SettlementLine{
		{ChargeType: ChargeEnergy, Amount: dec("0.01")},
		{ChargeType: ChargeGridTariff, Amount: dec("0.01")},
		{ChargeType: ChargeSystemTariff, Amount: dec("0.01")},
	}
	shares := AllocateVAT(lines, dec("0.03"), dec("0.01"))

	assertAmount(t, "first", shares[0], "0")
	assertAmount(t, "second", shares[1], "0")
	assertAmount(t, "last", shares[2], "0.01")
}

func TestAllocateVATZeroSubtotal(t *testing.T) {
	lines := []SettlementLine{{ChargeType: ChargeEnergy, Amount: decimal.Zero}}
	shares := AllocateVAT(lines, decimal.Zero, decimal.Zero)
	if len(shares) != 1 || !shares[0].IsZero() {
		t.Fatalf("expected zero share, got %v", shares)
	}
	if got := AllocateVAT(nil, dec("10"), dec("2.5")); len(got) != 0 {
		t.Fatalf("expected no shares, got %v", got)
	}
}

func TestBuildRunLines(t *testing.T) {
	start := time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC)
	result := Calculate(profileRequest(start, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), januaryProfile))

	lines := BuildRunLines("run-1", result)
	vat := decimal.Zero
	for i, line := range lines {
		if line.RunID != "run-1" || line.Position != i+1 {
			t.Fatalf("unexpected line identity %+v", line)
		}
		if line.ChargeType != result.Lines[i].ChargeType {
			t.Fatalf("line %d order changed", i)
		}
		vat = vat.Add(line.VATAmount)
	}
	assertAmount(t, "allocated vat", vat, "81.87")
}
