package settlement

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunStatus is the outcome of a settlement attempt.
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// BillingPeriod is a persisted period, unique by its date range.
type BillingPeriod struct {
	ID          int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	Frequency   Frequency
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SettlementRun is one append-only settlement attempt for a metering point and period.
// Version increases per metering point + period; a retry after failure is a new version.
type SettlementRun struct {
	ID              string
	MeteringPointID string
	GridArea        string
	BillingPeriodID int64
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Frequency       Frequency
	Version         int
	Status          RunStatus
	ErrorDetail     string
	TotalKWh        decimal.Decimal
	Subtotal        decimal.Decimal
	VATAmount       decimal.Decimal
	Total           decimal.Decimal
	ExecutedAt      time.Time
	CompletedAt     time.Time
}

// RunLine is a persisted settlement line with its VAT share.
type RunLine struct {
	RunID      string
	Position   int
	ChargeType ChargeType
	KWh        decimal.NullDecimal
	Amount     decimal.Decimal
	VATAmount  decimal.Decimal
}

// BuildRunLines tags the result lines with the run id and allocated VAT.
func BuildRunLines(runID string, result SettlementResult) []RunLine {
	shares := AllocateVAT(result.Lines, result.Subtotal, result.VATAmount)
	lines := make([]RunLine, len(result.Lines))
	for i, line := range result.Lines {
		lines[i] = RunLine{
			RunID:      runID,
			Position:   i + 1,
			ChargeType: line.ChargeType,
			KWh:        line.KWh,
			Amount:     line.Amount,
			VATAmount:  shares[i],
		}
	}
	return lines
}

// PeriodKey identifies a metering point period; it is the lock and dedupe key.
func PeriodKey(meteringPointID string, start, end time.Time) string {
	return meteringPointID + "|" + start.Format("2006-01-02") + "|" + end.Format("2006-01-02")
}
