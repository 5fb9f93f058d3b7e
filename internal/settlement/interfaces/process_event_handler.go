package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	process "retail-settlement/internal/process/domain"
	"retail-settlement/internal/settlement/application"
)

// ProcessTransitionRequested asks for a market process lifecycle transition.
type ProcessTransitionRequested struct {
	ProcessID  string    `json:"process_id"`
	Event      string    `json:"event"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ProcessStore loads and updates market processes.
type ProcessStore interface {
	Get(ctx context.Context, id string) (*process.MarketProcess, error)
	UpdateState(ctx context.Context, id string, from, to process.State, at time.Time) error
}

// ErrProcessNotFound is returned for an unknown process id.
var ErrProcessNotFound = errors.New("process handler: process not found")

// TransitionResult reports an applied transition and any settlement it triggered.
type TransitionResult struct {
	ProcessID       string                      `json:"process_id"`
	MeteringPointID string                      `json:"metering_point_id"`
	From            process.State               `json:"from"`
	To              process.State               `json:"to"`
	Settlement      *application.AdvanceSummary `json:"settlement,omitempty"`
}

// ProcessEventHandler applies lifecycle transitions and advances settlement
// when a metering point reaches a settleable state.
type ProcessEventHandler struct {
	store    ProcessStore
	advancer application.Advancer
	clock    application.Clock
	logger   *log.Logger
}

// NewProcessEventHandler constructs the handler.
func NewProcessEventHandler(store ProcessStore, advancer application.Advancer, clock application.Clock, logger *log.Logger) (*ProcessEventHandler, error) {
	if store == nil {
		return nil, errors.New("process handler: nil store")
	}
	if advancer == nil {
		return nil, errors.New("process handler: nil advancer")
	}
	if clock == nil {
		clock = application.SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &ProcessEventHandler{store: store, advancer: advancer, clock: clock, logger: logger}, nil
}

// Apply runs one transition. A settlement failure after a successful transition
// is logged and does not undo the transition.
func (h *ProcessEventHandler) Apply(ctx context.Context, req ProcessTransitionRequested) (*TransitionResult, error) {
	event, err := process.ParseEvent(req.Event)
	if err != nil {
		return nil, err
	}
	p, err := h.store.Get(ctx, req.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("load process: %w", err)
	}
	if p == nil {
		return nil, ErrProcessNotFound
	}
	at := req.OccurredAt
	if at.IsZero() {
		at = h.clock.Now()
	}
	from, err := p.Apply(event, at)
	if err != nil {
		return nil, err
	}
	if err := h.store.UpdateState(ctx, p.ID, from, p.State, at); err != nil {
		return nil, fmt.Errorf("update process: %w", err)
	}
	h.logger.Printf("event=process_transition process_id=%s metering_point_id=%s from=%s to=%s", p.ID, p.MeteringPointID, from, p.State)

	result := &TransitionResult{ProcessID: p.ID, MeteringPointID: p.MeteringPointID, From: from, To: p.State}
	if !process.TriggersSettlement(p.State) {
		return result, nil
	}
	summary, err := h.advancer.AdvanceMeteringPoint(ctx, p.MeteringPointID)
	if err != nil {
		h.logger.Printf("event=process_settlement_failed process_id=%s metering_point_id=%s error=%v", p.ID, p.MeteringPointID, err)
		return result, nil
	}
	result.Settlement = &summary
	return result, nil
}

// HandleEvent consumes ProcessTransitionRequested events from the bus.
func (h *ProcessEventHandler) HandleEvent(ctx context.Context, event any) error {
	if h == nil {
		return errors.New("process handler: nil handler")
	}
	var req ProcessTransitionRequested
	switch e := event.(type) {
	case ProcessTransitionRequested:
		req = e
	case *ProcessTransitionRequested:
		if e == nil {
			return nil
		}
		req = *e
	default:
		return nil
	}
	_, err := h.Apply(ctx, req)
	return err
}

// ServeHTTP handles POST /api/v1/processes/transitions.
func (h *ProcessEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req ProcessTransitionRequested
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.Apply(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, ErrProcessNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, process.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Printf("event=process_transition_failed process_id=%s error=%v", req.ProcessID, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
