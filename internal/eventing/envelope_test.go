package eventing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBuildEnvelope_DerivesFieldsFromEvent(t *testing.T) {
	at := time.Date(2025, 2, 1, 6, 0, 0, 0, time.FixedZone("CET", 3600))
	env, err := BuildEnvelope(&meterRead{MeteringPointID: "mp-1", KWh: "1.5", OccurredAt: at}, Meta{TenantID: "supplier-a"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if env.EventType != EventTypeOf[meterRead]() {
		t.Fatalf("unexpected event type %q", env.EventType)
	}
	if env.MeteringPointID != "mp-1" || env.TenantID != "supplier-a" {
		t.Fatalf("unexpected metadata: %+v", env)
	}
	if !env.OccurredAt.Equal(at) || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("expected UTC occurred_at, got %s", env.OccurredAt)
	}
	if env.EventID == "" || env.CorrelationID != env.EventID || env.SchemaVersion != 1 {
		t.Fatalf("unexpected defaults: %+v", env)
	}
}

func TestBuildEnvelope_NilEvent(t *testing.T) {
	if _, err := BuildEnvelope(nil, Meta{}); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("expected ErrNilEvent, got %v", err)
	}
}

func TestMetaFromContext_AccumulatesOverrides(t *testing.T) {
	ctx := WithEventID(context.Background(), "evt-1")
	ctx = WithCorrelationID(ctx, "run-1")
	ctx = WithMeteringPointID(ctx, "mp-9")

	meta := MetaFromContext(ctx, "supplier-default")
	if meta.EventID != "evt-1" || meta.CorrelationID != "run-1" || meta.MeteringPointID != "mp-9" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	if meta.TenantID != "supplier-default" {
		t.Fatalf("expected default tenant, got %q", meta.TenantID)
	}

	meta = MetaFromContext(WithTenantID(ctx, "supplier-b"), "supplier-default")
	if meta.TenantID != "supplier-b" || meta.EventID != "evt-1" {
		t.Fatalf("unexpected overridden meta: %+v", meta)
	}
}
