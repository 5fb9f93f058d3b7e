package interfaces

import (
	"context"
	"errors"
	"log"

	"retail-settlement/internal/settlement/application"
)

// LoggingPublisher logs settlement events when no outbox is configured.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishSettlementCompleted logs the event.
func (p *LoggingPublisher) PublishSettlementCompleted(ctx context.Context, event application.SettlementCompleted) error {
	if p == nil {
		return errors.New("settlement publisher: nil publisher")
	}
	p.logger.Printf("event=settlement_completed metering_point_id=%s period_start=%s period_end=%s run_id=%s version=%d total=%s",
		event.MeteringPointID, event.PeriodStart.Format("2006-01-02"), event.PeriodEnd.Format("2006-01-02"), event.RunID, event.Version, event.Total.StringFixed(2))
	return nil
}

// PublishSettlementFailed logs the event.
func (p *LoggingPublisher) PublishSettlementFailed(ctx context.Context, event application.SettlementFailed) error {
	if p == nil {
		return errors.New("settlement publisher: nil publisher")
	}
	p.logger.Printf("event=settlement_failed metering_point_id=%s period_start=%s period_end=%s run_id=%s version=%d error=%q",
		event.MeteringPointID, event.PeriodStart.Format("2006-01-02"), event.PeriodEnd.Format("2006-01-02"), event.RunID, event.Version, event.ErrorDetail)
	return nil
}
