package settlement

import (
	"context"
	"time"
)

// ResultStore persists settlement outcomes exactly once per metering point period.
type ResultStore interface {
	// Store records a completed run with its lines. It returns ErrAlreadySettled
	// when a completed run for the period already exists.
	Store(ctx context.Context, meteringPointID, gridArea string, result SettlementResult, frequency Frequency) (*SettlementRun, error)
	// StoreFailed records a failed run without lines.
	StoreFailed(ctx context.Context, meteringPointID, gridArea string, periodStart, periodEnd time.Time, frequency Frequency, errorDetail string) (*SettlementRun, error)
	// HasRun reports whether a completed run exists, whatever its version.
	HasRun(ctx context.Context, meteringPointID string, periodStart, periodEnd time.Time) (bool, error)
}

// RunHistory exposes persisted runs for reporting and corrections.
type RunHistory interface {
	ListRuns(ctx context.Context, meteringPointID string) ([]SettlementRun, error)
	GetRun(ctx context.Context, runID string) (*SettlementRun, []RunLine, error)
	LatestCompletedRun(ctx context.Context, meteringPointID string, periodStart, periodEnd time.Time) (*SettlementRun, []RunLine, error)
}
