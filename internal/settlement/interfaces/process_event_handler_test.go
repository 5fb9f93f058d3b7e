package interfaces

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	process "retail-settlement/internal/process/domain"
	"retail-settlement/internal/settlement/application"
)

type memoryProcesses struct {
	processes map[string]*process.MarketProcess
	updates   int
}

func (m *memoryProcesses) Get(_ context.Context, id string) (*process.MarketProcess, error) {
	p, ok := m.processes[id]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (m *memoryProcesses) UpdateState(_ context.Context, id string, from, to process.State, at time.Time) error {
	p := m.processes[id]
	if p.State != from {
		return errors.New("stale")
	}
	p.State = to
	p.UpdatedAt = at
	m.updates++
	return nil
}

type fixedNow struct{ t time.Time }

func (c fixedNow) Now() time.Time { return c.t }

func newProcessFixture(t *testing.T, state process.State) (*ProcessEventHandler, *memoryProcesses, *stubAdvancer) {
	t.Helper()
	store := &memoryProcesses{processes: map[string]*process.MarketProcess{
		"proc-1": {ID: "proc-1", MeteringPointID: "mp-1", ProcessType: "supplier_switch", State: state},
	}}
	advancer := &stubAdvancer{summary: application.AdvanceSummary{Settled: 1, Outcome: application.OutcomeOpen}}
	handler, err := NewProcessEventHandler(store, advancer, fixedNow{time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler, store, advancer
}

func TestProcessCompletionTriggersSettlement(t *testing.T) {
	handler, store, advancer := newProcessFixture(t, process.StateEffectuationPending)
	result, err := handler.Apply(context.Background(), ProcessTransitionRequested{ProcessID: "proc-1", Event: "complete"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.From != process.StateEffectuationPending || result.To != process.StateCompleted {
		t.Fatalf("unexpected transition %+v", result)
	}
	if store.processes["proc-1"].State != process.StateCompleted {
		t.Fatalf("state not persisted")
	}
	if len(advancer.calls) != 1 || advancer.calls[0] != "mp-1" {
		t.Fatalf("expected settlement for mp-1, got %v", advancer.calls)
	}
	if result.Settlement == nil || result.Settlement.Settled != 1 {
		t.Fatalf("expected settlement summary, got %+v", result.Settlement)
	}
}

func TestProcessNonSettleableStateDoesNotAdvance(t *testing.T) {
	handler, _, advancer := newProcessFixture(t, process.StatePending)
	result, err := handler.Apply(context.Background(), ProcessTransitionRequested{ProcessID: "proc-1", Event: "send"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.To != process.StateSentToHub || result.Settlement != nil {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(advancer.calls) != 0 {
		t.Fatalf("advance must not be called")
	}
}

func TestProcessInvalidTransitionOverHTTP(t *testing.T) {
	handler, store, _ := newProcessFixture(t, process.StatePending)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/processes/transitions", strings.NewReader(`{"process_id":"proc-1","event":"settle_final"}`)))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
	if store.updates != 0 {
		t.Fatalf("no update expected")
	}
}

func TestProcessUnknownOverHTTP(t *testing.T) {
	handler, _, _ := newProcessFixture(t, process.StatePending)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/processes/transitions", strings.NewReader(`{"process_id":"nope","event":"send"}`)))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestProcessSettlementErrorKeepsTransition(t *testing.T) {
	handler, store, advancer := newProcessFixture(t, process.StateCompleted)
	advancer.err = errors.New("db down")
	if err := handler.HandleEvent(context.Background(), ProcessTransitionRequested{ProcessID: "proc-1", Event: "begin_offboarding"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if store.processes["proc-1"].State != process.StateOffboarding {
		t.Fatalf("expected offboarding, got %s", store.processes["proc-1"].State)
	}
}
