package metering

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	settlementapp "retail-settlement/internal/settlement/application"
	settlement "retail-settlement/internal/settlement/domain"
)

func TestNewDataLoader_NilDB(t *testing.T) {
	if _, err := NewDataLoader(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
	if _, err := NewSampleCounter(nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}

func TestDataLoader_ValidatesQueryBeforeQuerying(t *testing.T) {
	// sql.Open does not connect; validation must fail before any query runs.
	db, err := sql.Open("pgx", "postgres://settlement@127.0.0.1:1/none")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	loader, err := NewDataLoader(db)
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err = loader.Load(context.Background(), settlementapp.PeriodQuery{PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)})
	if !errors.Is(err, settlement.ErrEmptyMeteringPointID) {
		t.Fatalf("expected ErrEmptyMeteringPointID, got %v", err)
	}
	_, err = loader.Load(context.Background(), settlementapp.PeriodQuery{MeteringPointID: "mp-1", PeriodStart: start, PeriodEnd: start})
	if !errors.Is(err, settlement.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}

func TestDataLoader_DateUsesConfiguredLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Copenhagen")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	loader := &DataLoader{loc: loc}
	// 23:30 UTC on Dec 31 is already Jan 1 in Copenhagen.
	got := loader.date(time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC))
	if want := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
