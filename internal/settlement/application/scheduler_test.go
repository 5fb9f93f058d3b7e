package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingAdvancer struct {
	mu      sync.Mutex
	seen    map[string]int
	active  int32
	peak    int32
	failFor string
}

func (a *countingAdvancer) AdvanceMeteringPoint(_ context.Context, id string) (AdvanceSummary, error) {
	n := atomic.AddInt32(&a.active, 1)
	for {
		p := atomic.LoadInt32(&a.peak)
		if n <= p || atomic.CompareAndSwapInt32(&a.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&a.active, -1)

	a.mu.Lock()
	a.seen[id]++
	a.mu.Unlock()
	if id == a.failFor {
		return AdvanceSummary{}, errors.New("boom")
	}
	return AdvanceSummary{MeteringPointID: id, Settled: 1, Outcome: OutcomeOpen}, nil
}

type stubSource struct {
	ids []string
	err error
}

func (s stubSource) ListSettleable(_ context.Context) ([]string, error) {
	return s.ids, s.err
}

func TestSchedulerRunOnceAdvancesAllWithLimit(t *testing.T) {
	advancer := &countingAdvancer{seen: map[string]int{}, failFor: "mp-2"}
	source := stubSource{ids: []string{"mp-1", "mp-2", "mp-3", "mp-4", "mp-5", "mp-6"}}
	scheduler := NewScheduler(advancer, source, ScheduleConfig{Concurrency: 2}, nil)

	if got := scheduler.RunOnce(context.Background()); got != 6 {
		t.Fatalf("expected 6 metering points, got %d", got)
	}
	for _, id := range source.ids {
		if advancer.seen[id] != 1 {
			t.Fatalf("expected %s advanced once, got %d", id, advancer.seen[id])
		}
	}
	if advancer.peak > 2 {
		t.Fatalf("expected concurrency <= 2, got %d", advancer.peak)
	}
}

func TestSchedulerAllowListOverridesSource(t *testing.T) {
	advancer := &countingAdvancer{seen: map[string]int{}}
	source := stubSource{err: errors.New("should not be called")}
	scheduler := NewScheduler(advancer, source, ScheduleConfig{MeteringPoints: []string{"mp-9"}}, nil)

	scheduler.RunOnce(context.Background())
	if advancer.seen["mp-9"] != 1 || len(advancer.seen) != 1 {
		t.Fatalf("expected only mp-9, got %v", advancer.seen)
	}
}

func TestSchedulerSourceError(t *testing.T) {
	advancer := &countingAdvancer{seen: map[string]int{}}
	scheduler := NewScheduler(advancer, stubSource{err: errors.New("db down")}, ScheduleConfig{}, nil)

	if got := scheduler.RunOnce(context.Background()); got != 0 {
		t.Fatalf("expected 0 on source error, got %d", got)
	}
}
