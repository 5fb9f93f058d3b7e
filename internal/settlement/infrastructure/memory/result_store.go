package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"retail-settlement/internal/platform/keylock"
	"retail-settlement/internal/settlement/domain"
)

// ResultStore is an in-memory settlement result store with the same
// locking and versioning rules as the Postgres store.
type ResultStore struct {
	locker keylock.Locker
	now    func() time.Time

	mu       sync.RWMutex
	periods  map[string]*settlement.BillingPeriod
	runs     []settlement.SettlementRun
	lines    map[string][]settlement.RunLine
	periodID int64
}

// NewResultStore constructs a store. A nil locker uses an in-process sharded locker.
func NewResultStore(locker keylock.Locker) *ResultStore {
	if locker == nil {
		locker = keylock.NewShardedLocker(0)
	}
	return &ResultStore{
		locker:  locker,
		now:     func() time.Time { return time.Now().UTC() },
		periods: make(map[string]*settlement.BillingPeriod),
		lines:   make(map[string][]settlement.RunLine),
	}
}

// Store records a completed run and its lines.
func (s *ResultStore) Store(ctx context.Context, meteringPointID, gridArea string, result settlement.SettlementResult, frequency settlement.Frequency) (*settlement.SettlementRun, error) {
	if err := validate(meteringPointID, result.PeriodStart, result.PeriodEnd); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, settlement.PeriodKey(meteringPointID, result.PeriodStart, result.PeriodEnd))
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	period := s.upsertPeriod(result.PeriodStart, result.PeriodEnd, frequency)
	if s.completedLocked(meteringPointID, period.ID) != nil {
		return nil, settlement.ErrAlreadySettled
	}

	now := s.now()
	run := settlement.SettlementRun{
		ID:              uuid.NewString(),
		MeteringPointID: meteringPointID,
		GridArea:        gridArea,
		BillingPeriodID: period.ID,
		PeriodStart:     period.PeriodStart,
		PeriodEnd:       period.PeriodEnd,
		Frequency:       frequency,
		Version:         s.nextVersionLocked(meteringPointID, period.ID),
		Status:          settlement.RunStatusCompleted,
		TotalKWh:        result.TotalKWh,
		Subtotal:        result.Subtotal,
		VATAmount:       result.VATAmount,
		Total:           result.Total,
		ExecutedAt:      now,
		CompletedAt:     now,
	}
	s.runs = append(s.runs, run)
	s.lines[run.ID] = settlement.BuildRunLines(run.ID, result)
	return &run, nil
}

// StoreFailed records a failed run without lines.
func (s *ResultStore) StoreFailed(ctx context.Context, meteringPointID, gridArea string, periodStart, periodEnd time.Time, frequency settlement.Frequency, errorDetail string) (*settlement.SettlementRun, error) {
	if err := validate(meteringPointID, periodStart, periodEnd); err != nil {
		return nil, err
	}
	unlock, err := s.locker.Lock(ctx, settlement.PeriodKey(meteringPointID, periodStart, periodEnd))
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	period := s.upsertPeriod(periodStart, periodEnd, frequency)
	run := settlement.SettlementRun{
		ID:              uuid.NewString(),
		MeteringPointID: meteringPointID,
		GridArea:        gridArea,
		BillingPeriodID: period.ID,
		PeriodStart:     period.PeriodStart,
		PeriodEnd:       period.PeriodEnd,
		Frequency:       frequency,
		Version:         s.nextVersionLocked(meteringPointID, period.ID),
		Status:          settlement.RunStatusFailed,
		ErrorDetail:     errorDetail,
		ExecutedAt:      s.now(),
	}
	s.runs = append(s.runs, run)
	return &run, nil
}

// HasRun reports whether a completed run exists for the period.
func (s *ResultStore) HasRun(ctx context.Context, meteringPointID string, periodStart, periodEnd time.Time) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	period, ok := s.periods[rangeKey(periodStart, periodEnd)]
	if !ok {
		return false, nil
	}
	return s.completedLocked(meteringPointID, period.ID) != nil, nil
}

// ListRuns returns all runs for a metering point, newest first.
func (s *ResultStore) ListRuns(ctx context.Context, meteringPointID string) ([]settlement.SettlementRun, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []settlement.SettlementRun
	for _, run := range s.runs {
		if run.MeteringPointID == meteringPointID {
			out = append(out, run)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PeriodStart.Equal(out[j].PeriodStart) {
			return out[i].PeriodStart.After(out[j].PeriodStart)
		}
		return out[i].Version > out[j].Version
	})
	return out, nil
}

// GetRun returns a run and its lines.
func (s *ResultStore) GetRun(ctx context.Context, runID string) (*settlement.SettlementRun, []settlement.RunLine, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.runs {
		if s.runs[i].ID == runID {
			run := s.runs[i]
			return &run, cloneLines(s.lines[run.ID]), nil
		}
	}
	return nil, nil, settlement.ErrRunNotFound
}

// LatestCompletedRun returns the completed run for the period, or nil.
func (s *ResultStore) LatestCompletedRun(ctx context.Context, meteringPointID string, periodStart, periodEnd time.Time) (*settlement.SettlementRun, []settlement.RunLine, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	period, ok := s.periods[rangeKey(periodStart, periodEnd)]
	if !ok {
		return nil, nil, nil
	}
	run := s.completedLocked(meteringPointID, period.ID)
	if run == nil {
		return nil, nil, nil
	}
	copied := *run
	return &copied, cloneLines(s.lines[run.ID]), nil
}

func (s *ResultStore) upsertPeriod(start, end time.Time, frequency settlement.Frequency) *settlement.BillingPeriod {
	key := rangeKey(start, end)
	now := s.now()
	if period, ok := s.periods[key]; ok {
		if period.Frequency != frequency {
			period.Frequency = frequency
			period.UpdatedAt = now
		}
		return period
	}
	s.periodID++
	period := &settlement.BillingPeriod{
		ID:          s.periodID,
		PeriodStart: start,
		PeriodEnd:   end,
		Frequency:   frequency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.periods[key] = period
	return period
}

func (s *ResultStore) completedLocked(meteringPointID string, periodID int64) *settlement.SettlementRun {
	for i := len(s.runs) - 1; i >= 0; i-- {
		run := &s.runs[i]
		if run.MeteringPointID == meteringPointID && run.BillingPeriodID == periodID && run.Status == settlement.RunStatusCompleted {
			return run
		}
	}
	return nil
}

func (s *ResultStore) nextVersionLocked(meteringPointID string, periodID int64) int {
	latest := 0
	for _, run := range s.runs {
		if run.MeteringPointID == meteringPointID && run.BillingPeriodID == periodID && run.Version > latest {
			latest = run.Version
		}
	}
	return latest + 1
}

func validate(meteringPointID string, start, end time.Time) error {
	if meteringPointID == "" {
		return settlement.ErrEmptyMeteringPointID
	}
	if start.IsZero() || !end.After(start) {
		return settlement.ErrInvalidPeriod
	}
	return nil
}

func rangeKey(start, end time.Time) string {
	return start.Format("2006-01-02") + "|" + end.Format("2006-01-02")
}

func cloneLines(lines []settlement.RunLine) []settlement.RunLine {
	if lines == nil {
		return nil
	}
	out := make([]settlement.RunLine, len(lines))
	copy(out, lines)
	return out
}
