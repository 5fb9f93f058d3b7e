package application

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Advancer advances one metering point.
type Advancer interface {
	AdvanceMeteringPoint(ctx context.Context, meteringPointID string) (AdvanceSummary, error)
}

// MeteringPointSource lists metering points with a completed or offboarding process.
type MeteringPointSource interface {
	ListSettleable(ctx context.Context) ([]string, error)
}

// Scheduler periodically advances all settleable metering points.
type Scheduler struct {
	advancer    Advancer
	source      MeteringPointSource
	allowList   []string
	interval    time.Duration
	concurrency int
	logger      *log.Logger
}

// NewScheduler constructs a Scheduler. A non-empty allow-list replaces the source.
func NewScheduler(advancer Advancer, source MeteringPointSource, cfg ScheduleConfig, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		advancer:    advancer,
		source:      source,
		allowList:   cfg.MeteringPoints,
		interval:    interval,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Start runs a pass immediately and then on every tick until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.advancer == nil {
		return
	}
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce advances every metering point with bounded concurrency. A failure for
// one metering point is logged and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	ids, err := s.meteringPoints(ctx)
	if err != nil {
		s.logger.Printf("event=settlement_schedule_list_failed error=%v", err)
		return 0
	}

	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for _, id := range ids {
		if id == "" {
			continue
		}
		id := id
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			summary, err := s.advancer.AdvanceMeteringPoint(ctx, id)
			if err != nil {
				s.logger.Printf("event=settlement_advance_failed metering_point_id=%s error=%v", id, err)
				return nil
			}
			if summary.Settled > 0 {
				s.logger.Printf("event=settlement_advanced metering_point_id=%s settled=%d outcome=%s", id, summary.Settled, summary.Outcome)
			}
			return nil
		})
	}
	_ = group.Wait()
	return len(ids)
}

func (s *Scheduler) meteringPoints(ctx context.Context) ([]string, error) {
	if len(s.allowList) > 0 {
		return s.allowList, nil
	}
	if s.source == nil {
		return nil, nil
	}
	return s.source.ListSettleable(ctx)
}
