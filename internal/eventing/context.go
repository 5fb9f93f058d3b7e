package eventing

import "context"

type envelopeKey struct{}

type metaKey struct{}

// WithEnvelope attaches the envelope an event is being delivered with.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, envelopeKey{}, env)
}

// EnvelopeFromContext returns the delivery envelope, if any.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(envelopeKey{}).(Envelope)
	return env, ok
}

// WithTenantID overrides the tenant of events published with ctx.
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.TenantID = tenantID })
}

// WithCorrelationID sets the correlation id of events published with ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.CorrelationID = correlationID })
}

// WithEventID pins the event id; publishing the same id twice is a no-op in the outbox.
func WithEventID(ctx context.Context, eventID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.EventID = eventID })
}

// WithMeteringPointID sets the metering point of events published with ctx.
func WithMeteringPointID(ctx context.Context, meteringPointID string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.MeteringPointID = meteringPointID })
}

// MetaFromContext returns the overrides carried by ctx, falling back to defaultTenantID.
func MetaFromContext(ctx context.Context, defaultTenantID string) Meta {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	if meta.TenantID == "" {
		meta.TenantID = defaultTenantID
	}
	return meta
}

func withMeta(ctx context.Context, set func(*Meta)) context.Context {
	meta, _ := ctx.Value(metaKey{}).(Meta)
	set(&meta)
	return context.WithValue(ctx, metaKey{}, meta)
}
