package apihttp

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"time"

	settlement "retail-settlement/internal/settlement/domain"
)

const dateLayout = "2006-01-02"

var runsCSVHeader = []string{
	"run_id",
	"metering_point_id",
	"grid_area",
	"period_start",
	"period_end",
	"frequency",
	"version",
	"status",
	"total_kwh",
	"subtotal",
	"vat_amount",
	"total",
	"error_detail",
	"executed_at",
}

// ExportRunsCSVHandler streams a metering point's run history as CSV.
type ExportRunsCSVHandler struct {
	history settlement.RunHistory
}

// NewExportRunsCSVHandler constructs an ExportRunsCSVHandler.
func NewExportRunsCSVHandler(history settlement.RunHistory) *ExportRunsCSVHandler {
	return &ExportRunsCSVHandler{history: history}
}

// ServeHTTP handles GET /api/v1/exports/runs.csv.
//
// from and to are optional dates; a run is included when its period starts in [from, to).
func (h *ExportRunsCSVHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.history == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	meteringPointID := r.URL.Query().Get("metering_point_id")
	if meteringPointID == "" {
		http.Error(w, "metering_point_id is required", http.StatusBadRequest)
		return
	}
	from, err := parseDateQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDateQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	runs, err := h.history.ListRuns(r.Context(), meteringPointID)
	if err != nil {
		http.Error(w, "query runs error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="runs-`+meteringPointID+`.csv"`)
	writer := csv.NewWriter(w)
	_ = writer.Write(runsCSVHeader)
	for _, run := range runs {
		if !inRange(run.PeriodStart, from, to) {
			continue
		}
		_ = writer.Write(runRecord(run))
	}
	writer.Flush()
}

func runRecord(run settlement.SettlementRun) []string {
	return []string{
		run.ID,
		run.MeteringPointID,
		run.GridArea,
		run.PeriodStart.Format(dateLayout),
		run.PeriodEnd.Format(dateLayout),
		string(run.Frequency),
		strconv.Itoa(run.Version),
		string(run.Status),
		run.TotalKWh.String(),
		run.Subtotal.StringFixed(2),
		run.VATAmount.StringFixed(2),
		run.Total.StringFixed(2),
		run.ErrorDetail,
		formatTime(run.ExecutedAt),
	}
}

func inRange(start, from, to time.Time) bool {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	if !from.IsZero() && day.Before(from) {
		return false
	}
	if !to.IsZero() && !day.Before(to) {
		return false
	}
	return true
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be YYYY-MM-DD")
	}
	return parsed, nil
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}
