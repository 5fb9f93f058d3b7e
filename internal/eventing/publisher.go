package eventing

import "context"

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Publisher writes events to the outbox and optionally dispatches right away.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	tenantID string
}

// NewPublisher constructs a publisher. dispatch may be nil when a background
// dispatcher drains the outbox.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, tenantID string) *Publisher {
	return &Publisher{outbox: outbox, dispatch: dispatch, tenantID: tenantID}
}

// Publish writes the event to the outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.tenantID))
	if err != nil {
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return err
	}
	if p.dispatch != nil {
		_, _ = p.dispatch.Dispatch(ctx, 1)
	}
	return nil
}
