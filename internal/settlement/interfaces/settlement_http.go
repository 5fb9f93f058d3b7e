package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"retail-settlement/internal/audit"
	"retail-settlement/internal/auth"
	"retail-settlement/internal/observability/metrics"
	"retail-settlement/internal/settlement/application"
	settlement "retail-settlement/internal/settlement/domain"
)

// CorrectionPreviewer prices consumption revisions.
type CorrectionPreviewer interface {
	Preview(ctx context.Context, req application.CorrectionPreviewRequest) (*application.CorrectionPreview, error)
}

// SettlementHandler serves the settlement API.
type SettlementHandler struct {
	advancer    application.Advancer
	history     settlement.RunHistory
	corrections CorrectionPreviewer
	auditLogger audit.Logger
	loc         *time.Location
}

// NewSettlementHandler constructs a handler. corrections and auditLogger may be nil.
func NewSettlementHandler(advancer application.Advancer, history settlement.RunHistory, corrections CorrectionPreviewer, auditLogger audit.Logger, loc *time.Location) (*SettlementHandler, error) {
	if advancer == nil {
		return nil, errors.New("settlement handler: nil advancer")
	}
	if history == nil {
		return nil, errors.New("settlement handler: nil run history")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SettlementHandler{advancer: advancer, history: history, corrections: corrections, auditLogger: auditLogger, loc: loc}, nil
}

// ServeHTTP routes /api/v1/settlements/* and /api/v1/corrections/preview.
func (h *SettlementHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/settlements/advance" && r.Method == http.MethodPost:
		h.handleAdvance(w, r)
	case path == "/api/v1/settlements/runs" && r.Method == http.MethodGet:
		h.handleListRuns(w, r)
	case strings.HasPrefix(path, "/api/v1/settlements/runs/") && r.Method == http.MethodGet:
		h.handleRun(w, r, strings.TrimPrefix(path, "/api/v1/settlements/runs/"))
	case path == "/api/v1/corrections/preview" && r.Method == http.MethodPost:
		h.handleCorrectionPreview(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type runDTO struct {
	ID              string          `json:"id"`
	MeteringPointID string          `json:"metering_point_id"`
	GridArea        string          `json:"grid_area"`
	PeriodStart     string          `json:"period_start"`
	PeriodEnd       string          `json:"period_end"`
	Frequency       string          `json:"frequency"`
	Version         int             `json:"version"`
	Status          string          `json:"status"`
	ErrorDetail     string          `json:"error_detail,omitempty"`
	TotalKWh        decimal.Decimal `json:"total_kwh"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	VATAmount       decimal.Decimal `json:"vat_amount"`
	Total           decimal.Decimal `json:"total"`
	ExecutedAt      time.Time       `json:"executed_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

type lineDTO struct {
	Position   int              `json:"position"`
	ChargeType string           `json:"charge_type"`
	KWh        *decimal.Decimal `json:"kwh,omitempty"`
	Amount     decimal.Decimal  `json:"amount"`
	VATAmount  decimal.Decimal  `json:"vat_amount"`
}

func toRunDTO(run settlement.SettlementRun) runDTO {
	dto := runDTO{
		ID:              run.ID,
		MeteringPointID: run.MeteringPointID,
		GridArea:        run.GridArea,
		PeriodStart:     run.PeriodStart.Format("2006-01-02"),
		PeriodEnd:       run.PeriodEnd.Format("2006-01-02"),
		Frequency:       string(run.Frequency),
		Version:         run.Version,
		Status:          string(run.Status),
		ErrorDetail:     run.ErrorDetail,
		TotalKWh:        run.TotalKWh,
		Subtotal:        run.Subtotal,
		VATAmount:       run.VATAmount,
		Total:           run.Total,
		ExecutedAt:      run.ExecutedAt,
	}
	if !run.CompletedAt.IsZero() {
		completed := run.CompletedAt
		dto.CompletedAt = &completed
	}
	return dto
}

func toLineDTO(position int, chargeType settlement.ChargeType, kwh decimal.NullDecimal, amount, vat decimal.Decimal) lineDTO {
	dto := lineDTO{Position: position, ChargeType: string(chargeType), Amount: amount, VATAmount: vat}
	if kwh.Valid {
		value := kwh.Decimal
		dto.KWh = &value
	}
	return dto
}

func (h *SettlementHandler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MeteringPointID string `json:"metering_point_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.MeteringPointID) == "" {
		http.Error(w, "metering_point_id required", http.StatusBadRequest)
		return
	}
	summary, err := h.advancer.AdvanceMeteringPoint(r.Context(), req.MeteringPointID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	resp := map[string]any{
		"metering_point_id": summary.MeteringPointID,
		"settled":           summary.Settled,
		"skipped":           summary.Skipped,
		"outcome":           summary.Outcome,
	}
	if !summary.NextPeriodStart.IsZero() {
		resp["next_period_start"] = summary.NextPeriodStart.Format("2006-01-02")
	}
	writeJSON(w, http.StatusOK, resp)
	h.logAudit(r, req.MeteringPointID, "metering_point", req.MeteringPointID, "settlement.advance", map[string]any{
		"outcome": summary.Outcome,
		"settled": summary.Settled,
	})
}

func (h *SettlementHandler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	meteringPointID := r.URL.Query().Get("metering_point_id")
	if meteringPointID == "" {
		http.Error(w, "metering_point_id required", http.StatusBadRequest)
		return
	}
	runs, err := h.history.ListRuns(r.Context(), meteringPointID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *SettlementHandler) handleRun(w http.ResponseWriter, r *http.Request, rest string) {
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch action {
	case "":
		h.handleGetRun(w, r, id)
	case "export.pdf":
		h.handleExport(w, r, id, "pdf")
	case "export.xlsx":
		h.handleExport(w, r, id, "xlsx")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *SettlementHandler) handleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	run, lines, err := h.history.GetRun(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	resp := struct {
		Run   runDTO    `json:"run"`
		Lines []lineDTO `json:"lines"`
	}{Run: toRunDTO(*run), Lines: make([]lineDTO, 0, len(lines))}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, toLineDTO(line.Position, line.ChargeType, line.KWh, line.Amount, line.VATAmount))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *SettlementHandler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveExport(format, result, time.Since(start))
	}()

	run, lines, err := h.history.GetRun(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildRunPDF(run, lines)
		contentType = "application/pdf"
	default:
		data, err = BuildRunXLSX(run, lines)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\"settlement-"+run.ID+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, run.MeteringPointID, "settlement_run", run.ID, "settlement.export", map[string]any{"format": format})
}

type deltaRequest struct {
	Timestamp   time.Time       `json:"timestamp"`
	PreviousKWh decimal.Decimal `json:"previous_kwh"`
	NewKWh      decimal.Decimal `json:"new_kwh"`
}

func (h *SettlementHandler) handleCorrectionPreview(w http.ResponseWriter, r *http.Request) {
	if h.corrections == nil {
		http.Error(w, "corrections unavailable", http.StatusServiceUnavailable)
		return
	}
	var req struct {
		MeteringPointID string         `json:"metering_point_id"`
		PeriodStart     string         `json:"period_start"`
		PeriodEnd       string         `json:"period_end"`
		Deltas          []deltaRequest `json:"deltas"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	start, err := time.ParseInLocation("2006-01-02", req.PeriodStart, h.loc)
	if err != nil {
		http.Error(w, "invalid period_start", http.StatusBadRequest)
		return
	}
	end, err := time.ParseInLocation("2006-01-02", req.PeriodEnd, h.loc)
	if err != nil {
		http.Error(w, "invalid period_end", http.StatusBadRequest)
		return
	}
	deltas := make([]settlement.ConsumptionDelta, 0, len(req.Deltas))
	for _, delta := range req.Deltas {
		deltas = append(deltas, settlement.ConsumptionDelta{
			Timestamp:   delta.Timestamp.UTC(),
			PreviousKWh: delta.PreviousKWh,
			NewKWh:      delta.NewKWh,
		})
	}

	preview, err := h.corrections.Preview(r.Context(), application.CorrectionPreviewRequest{
		MeteringPointID: req.MeteringPointID,
		PeriodStart:     start,
		PeriodEnd:       end,
		Deltas:          deltas,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	lines := make([]lineDTO, 0, len(preview.Result.Lines))
	for i, line := range preview.Result.Lines {
		lines = append(lines, toLineDTO(i+1, line.ChargeType, line.KWh, line.Amount, decimal.Zero))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"original_run_id":  preview.OriginalRunID,
		"original_version": preview.OriginalVersion,
		"total_delta_kwh":  preview.Result.TotalDeltaKWh,
		"lines":            lines,
		"subtotal":         preview.Result.Subtotal,
		"vat_amount":       preview.Result.VATAmount,
		"total":            preview.Result.Total,
	})
}

func (h *SettlementHandler) logAudit(r *http.Request, meteringPointID, resourceType, resourceID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		TenantID:        tenantID,
		Actor:           auth.SubjectFromContext(r.Context()),
		Role:            string(auth.RoleFromContext(r.Context())),
		Action:          action,
		ResourceType:    resourceType,
		ResourceID:      resourceID,
		MeteringPointID: meteringPointID,
		Metadata:        payload,
		IP:              audit.ClientIP(r),
		UserAgent:       r.UserAgent(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		return
	case errors.Is(err, settlement.ErrRunNotFound),
		errors.Is(err, application.ErrContractNotFound),
		errors.Is(err, application.ErrMeteringPointNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, settlement.ErrEmptyMeteringPointID),
		errors.Is(err, settlement.ErrInvalidPeriod),
		errors.Is(err, settlement.ErrInvalidFrequency):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
