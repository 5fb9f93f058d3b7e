package interfaces

import (
	"context"

	"retail-settlement/internal/eventing"
	"retail-settlement/internal/settlement/application"
)

// OutboxPublisher writes settlement events to the transactional outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
	tenantID  string
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher, tenantID string) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher, tenantID: tenantID}
}

// PublishSettlementCompleted writes the event to the outbox.
func (p *OutboxPublisher) PublishSettlementCompleted(ctx context.Context, event application.SettlementCompleted) error {
	return p.publish(ctx, event.RunID, event)
}

// PublishSettlementFailed writes the event to the outbox.
func (p *OutboxPublisher) PublishSettlementFailed(ctx context.Context, event application.SettlementFailed) error {
	return p.publish(ctx, event.RunID, event)
}

// publish keys the event by run id so a republished run stays one outbox record.
func (p *OutboxPublisher) publish(ctx context.Context, runID string, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	ctx = eventing.WithTenantID(ctx, p.tenantID)
	if runID != "" {
		ctx = eventing.WithEventID(ctx, eventing.EventType(event)+":"+runID)
		ctx = eventing.WithCorrelationID(ctx, runID)
	}
	return p.publisher.Publish(ctx, event)
}
