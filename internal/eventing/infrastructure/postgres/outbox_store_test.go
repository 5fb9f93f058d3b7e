package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"retail-settlement/internal/eventing"
)

type runFinished struct {
	MeteringPointID string
	RunID           string
	OccurredAt      time.Time
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, table := range []string{"event_outbox", "processed_events", "dead_letter_events"} {
		if !tableExists(db, table) {
			t.Skip("missing tables; run migrations")
		}
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
	return db
}

func TestOutboxIdempotentConsumer(t *testing.T) {
	db := openTestDB(t)
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(runFinished{})
	outbox := NewOutboxStore(db)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, NewDLQStore(db, ""))
	publisher := eventing.NewPublisher(outbox, nil, "tenant-test")

	count := 0
	eventing.Subscribe(bus, eventing.EventTypeOf[runFinished](), "consumer-a", func(ctx context.Context, event any) error {
		count++
		return nil
	}, NewProcessedStore(db, ""))

	ctx := eventing.WithEventID(context.Background(), "evt-dup-001")
	event := runFinished{MeteringPointID: "mp-1", RunID: "run-1"}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	if _, err := dispatcher.Dispatch(ctx, 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected handler once, got %d", count)
	}
}

func TestOutboxDeadLetterOnFailure(t *testing.T) {
	db := openTestDB(t)
	bus := eventing.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(runFinished{})
	outbox := NewOutboxStore(db)
	dispatcher := eventing.NewDispatcher(bus, outbox, registry, NewDLQStore(db, ""))

	bus.Subscribe(eventing.EventTypeOf[runFinished](), func(ctx context.Context, event any) error {
		return errors.New("boom")
	})
	if err := eventing.NewPublisher(outbox, dispatcher, "tenant-test").Publish(context.Background(), runFinished{MeteringPointID: "mp-2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var dlqCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM dead_letter_events").Scan(&dlqCount); err != nil {
		t.Fatalf("count dlq: %v", err)
	}
	if dlqCount != 1 {
		t.Fatalf("expected 1 dlq record, got %d", dlqCount)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	return err == nil && exists
}
