package eventing

import (
	"context"
	"log"
	"time"

	"retail-settlement/internal/observability/metrics"
)

// Dispatcher moves pending outbox events onto the in-process bus.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
}

// EventBus is the minimal publish interface.
type EventBus interface {
	Publish(ctx context.Context, event any) error
}

// OutboxStore provides access to outbox records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// DLQStore records failures.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, err error) error
}

// OutboxRecord represents a pending outbox entry.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// DispatchResult captures the outcome of a dispatch run.
type DispatchResult struct {
	Claimed int
	Sent    int
	Failed  int
	DLQ     int
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore) *Dispatcher {
	return &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq}
}

// Dispatch delivers up to limit pending records.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (DispatchResult, error) {
	var result DispatchResult
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return result, nil
	}
	start := time.Now()
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, err
	}
	result.Claimed = len(records)

	var firstErr error
	fail := func(record OutboxRecord, cause error) {
		if err := d.outbox.MarkFailed(ctx, record.ID); err != nil && firstErr == nil {
			firstErr = err
		}
		if d.dlq != nil {
			if err := d.dlq.RecordFailure(ctx, record.Envelope, cause); err == nil {
				result.DLQ++
			}
		}
		result.Failed++
	}

	for _, record := range records {
		payload, err := d.registry.DecodePayload(record.Envelope)
		if err != nil {
			fail(record, err)
			continue
		}
		if err := d.bus.Publish(WithEnvelope(ctx, record.Envelope), payload); err != nil {
			fail(record, err)
			continue
		}
		if err := d.outbox.MarkSent(ctx, record.ID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			result.Failed++
			continue
		}
		result.Sent++
	}

	outcome := metrics.ResultSuccess
	if firstErr != nil || result.Failed > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveOutboxDispatch(outcome, time.Since(start), result.Sent, result.Failed, result.DLQ)
	return result, firstErr
}

// Run dispatches on every tick until ctx is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batch int, logger *log.Logger) {
	if d == nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := d.Dispatch(ctx, batch)
			if err != nil {
				logger.Printf("event=outbox_dispatch_failed error=%v", err)
				continue
			}
			if result.Failed > 0 {
				logger.Printf("event=outbox_dispatch claimed=%d sent=%d failed=%d dlq=%d", result.Claimed, result.Sent, result.Failed, result.DLQ)
			}
		}
	}
}
