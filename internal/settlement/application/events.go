package application

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettlementCompleted is emitted after a completed run is stored.
type SettlementCompleted struct {
	RunID           string          `json:"run_id"`
	MeteringPointID string          `json:"metering_point_id"`
	GridArea        string          `json:"grid_area"`
	PeriodStart     time.Time       `json:"period_start"`
	PeriodEnd       time.Time       `json:"period_end"`
	Version         int             `json:"version"`
	TotalKWh        decimal.Decimal `json:"total_kwh"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	Total           decimal.Decimal `json:"total"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

// SettlementFailed is emitted after a failed run is stored.
type SettlementFailed struct {
	RunID           string    `json:"run_id"`
	MeteringPointID string    `json:"metering_point_id"`
	GridArea        string    `json:"grid_area"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	Version         int       `json:"version"`
	ErrorDetail     string    `json:"error_detail"`
	OccurredAt      time.Time `json:"occurred_at"`
}
