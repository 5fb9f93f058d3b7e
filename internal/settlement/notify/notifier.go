package notify

import (
	"context"

	settlement "retail-settlement/internal/settlement/domain"
)

// AlertMessage is the operator-facing summary of a failed run.
type AlertMessage struct {
	MeteringPointID string            `json:"metering_point_id"`
	GridArea        string            `json:"grid_area"`
	PeriodStart     string            `json:"period_start"`
	PeriodEnd       string            `json:"period_end"`
	RunID           string            `json:"run_id"`
	Version         int               `json:"version"`
	ErrorDetail     string            `json:"error_detail"`
	Meta            map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// AlertFromRun builds the alert for a failed run.
func AlertFromRun(run settlement.SettlementRun) AlertMessage {
	return AlertMessage{
		MeteringPointID: run.MeteringPointID,
		GridArea:        run.GridArea,
		PeriodStart:     run.PeriodStart.Format("2006-01-02"),
		PeriodEnd:       run.PeriodEnd.Format("2006-01-02"),
		RunID:           run.ID,
		Version:         run.Version,
		ErrorDetail:     run.ErrorDetail,
		Meta:            map[string]string{"frequency": run.Frequency.String()},
	}
}
