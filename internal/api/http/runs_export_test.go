package apihttp

import (
	"context"
	"encoding/csv"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	settlement "retail-settlement/internal/settlement/domain"
)

type stubHistory struct {
	runs []settlement.SettlementRun
	err  error
}

func (s stubHistory) ListRuns(_ context.Context, _ string) ([]settlement.SettlementRun, error) {
	return s.runs, s.err
}

func (s stubHistory) GetRun(context.Context, string) (*settlement.SettlementRun, []settlement.RunLine, error) {
	return nil, nil, nil
}

func (s stubHistory) LatestCompletedRun(context.Context, string, time.Time, time.Time) (*settlement.SettlementRun, []settlement.RunLine, error) {
	return nil, nil, nil
}

func monthRun(id string, month time.Month, version int, status settlement.RunStatus) settlement.SettlementRun {
	start := time.Date(2025, month, 1, 0, 0, 0, 0, time.UTC)
	return settlement.SettlementRun{
		ID:              id,
		MeteringPointID: "571313100000000001",
		GridArea:        "GA1",
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 1, 0),
		Frequency:       settlement.FrequencyMonthly,
		Version:         version,
		Status:          status,
		TotalKWh:        decimal.RequireFromString("744"),
		Subtotal:        decimal.RequireFromString("634.51"),
		VATAmount:       decimal.RequireFromString("158.63"),
		Total:           decimal.RequireFromString("793.14"),
		ExecutedAt:      start.AddDate(0, 1, 1),
	}
}

func TestExportRunsCSV_FiltersByPeriodStart(t *testing.T) {
	handler := NewExportRunsCSVHandler(stubHistory{runs: []settlement.SettlementRun{
		monthRun("run-jan", time.January, 1, settlement.RunStatusCompleted),
		monthRun("run-feb-1", time.February, 1, settlement.RunStatusFailed),
		monthRun("run-feb-2", time.February, 2, settlement.RunStatusCompleted),
		monthRun("run-mar", time.March, 1, settlement.RunStatusCompleted),
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/exports/runs.csv?metering_point_id=571313100000000001&from=2025-02-01&to=2025-03-01", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(records))
	}
	if records[0][0] != "run_id" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "run-feb-1" || records[1][7] != "failed" || records[2][6] != "2" {
		t.Fatalf("unexpected rows: %v", records[1:])
	}
	if records[2][11] != "793.14" {
		t.Fatalf("unexpected total %q", records[2][11])
	}
}

func TestExportRunsCSV_Validation(t *testing.T) {
	handler := NewExportRunsCSVHandler(stubHistory{})
	cases := []struct {
		name   string
		method string
		url    string
		status int
	}{
		{"method", http.MethodPost, "/api/v1/exports/runs.csv?metering_point_id=a", http.StatusMethodNotAllowed},
		{"missing metering point", http.MethodGet, "/api/v1/exports/runs.csv", http.StatusBadRequest},
		{"bad date", http.MethodGet, "/api/v1/exports/runs.csv?metering_point_id=a&from=2025/01/01", http.StatusBadRequest},
		{"inverted range", http.MethodGet, "/api/v1/exports/runs.csv?metering_point_id=a&from=2025-02-01&to=2025-01-01", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.url, nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestExportRunsCSV_HistoryError(t *testing.T) {
	handler := NewExportRunsCSVHandler(stubHistory{err: errors.New("boom")})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/exports/runs.csv?metering_point_id=a", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
