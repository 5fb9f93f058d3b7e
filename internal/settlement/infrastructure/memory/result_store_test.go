package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"retail-settlement/internal/settlement/domain"
)

func sampleResult(start, end time.Time) settlement.SettlementResult {
	lines := []settlement.SettlementLine{
		{ChargeType: settlement.ChargeEnergy, KWh: decimal.NewNullDecimal(decimal.RequireFromString("10")), Amount: decimal.RequireFromString("3.33")},
		{ChargeType: settlement.ChargeGridTariff, KWh: decimal.NewNullDecimal(decimal.RequireFromString("10")), Amount: decimal.RequireFromString("3.33")},
		{ChargeType: settlement.ChargeSystemTariff, KWh: decimal.NewNullDecimal(decimal.RequireFromString("10")), Amount: decimal.RequireFromString("3.34")},
	}
	subtotal := decimal.RequireFromString("10.00")
	vat := settlement.VATFor(subtotal)
	return settlement.SettlementResult{
		MeteringPointID: "mp-1",
		PeriodStart:     start,
		PeriodEnd:       end,
		TotalKWh:        decimal.RequireFromString("10"),
		Lines:           lines,
		Subtotal:        subtotal,
		VATAmount:       vat,
		Total:           subtotal.Add(vat),
	}
}

func TestResultStoreConcurrentStoreSettlesOnce(t *testing.T) {
	store := NewResultStore(nil)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	result := sampleResult(start, end)

	var wg sync.WaitGroup
	var mu sync.Mutex
	stored, duplicates := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Store(context.Background(), "mp-1", "DK1", result, settlement.FrequencyMonthly)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				stored++
			case errors.Is(err, settlement.ErrAlreadySettled):
				duplicates++
			default:
				t.Errorf("store: %v", err)
			}
		}()
	}
	wg.Wait()

	if stored != 1 || duplicates != 9 {
		t.Fatalf("expected 1 stored and 9 duplicates, got %d and %d", stored, duplicates)
	}
	ok, err := store.HasRun(context.Background(), "mp-1", start, end)
	if err != nil || !ok {
		t.Fatalf("expected HasRun true, got %v %v", ok, err)
	}
}

func TestResultStoreFailedThenCompletedVersions(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore(nil)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	failed, err := store.StoreFailed(ctx, "mp-1", "DK1", start, end, settlement.FrequencyMonthly, "missing rate")
	if err != nil {
		t.Fatalf("store failed: %v", err)
	}
	if failed.Version != 1 || failed.Status != settlement.RunStatusFailed {
		t.Fatalf("unexpected failed run %+v", failed)
	}
	if ok, _ := store.HasRun(ctx, "mp-1", start, end); ok {
		t.Fatalf("failed run must not count as settled")
	}

	run, err := store.Store(ctx, "mp-1", "DK1", sampleResult(start, end), settlement.FrequencyMonthly)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if run.Version != 2 || run.BillingPeriodID != failed.BillingPeriodID {
		t.Fatalf("expected version 2 on same period, got %+v", run)
	}

	runs, _ := store.ListRuns(ctx, "mp-1")
	if len(runs) != 2 || runs[0].Version != 2 {
		t.Fatalf("expected newest first, got %+v", runs)
	}

	_, lines, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	vat := decimal.Zero
	for _, line := range lines {
		vat = vat.Add(line.VATAmount)
	}
	if !vat.Equal(run.VATAmount) {
		t.Fatalf("line vat %s != run vat %s", vat, run.VATAmount)
	}
}

func TestResultStoreLatestCompletedRun(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore(nil)
	start := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	run, lines, err := store.LatestCompletedRun(ctx, "mp-1", start, end)
	if err != nil || run != nil || lines != nil {
		t.Fatalf("expected no run, got %+v %v", run, err)
	}
	if _, _, err := store.GetRun(ctx, "missing"); !errors.Is(err, settlement.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}

	stored, err := store.Store(ctx, "mp-1", "DK1", sampleResult(start, end), settlement.FrequencyMonthly)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	run, lines, err = store.LatestCompletedRun(ctx, "mp-1", start, end)
	if err != nil || run == nil || run.ID != stored.ID || len(lines) != 3 {
		t.Fatalf("unexpected latest run %+v lines=%d err=%v", run, len(lines), err)
	}
}

func TestResultStoreValidation(t *testing.T) {
	store := NewResultStore(nil)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.Store(context.Background(), "", "DK1", sampleResult(start, start.AddDate(0, 1, 0)), settlement.FrequencyMonthly); !errors.Is(err, settlement.ErrEmptyMeteringPointID) {
		t.Fatalf("expected ErrEmptyMeteringPointID, got %v", err)
	}
	if _, err := store.StoreFailed(context.Background(), "mp-1", "DK1", start, start, settlement.FrequencyMonthly, "x"); !errors.Is(err, settlement.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
}
