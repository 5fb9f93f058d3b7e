package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"retail-settlement/internal/observability/metrics"
	"retail-settlement/internal/settlement/domain"
)

// Advance outcomes, also used as metric labels.
const (
	OutcomeOpen     = "open"
	OutcomeWaiting  = "waiting"
	OutcomeFailed   = "failed"
	OutcomeNotReady = "not_ready"
)

// AdvanceSummary reports what one advancement pass did.
type AdvanceSummary struct {
	MeteringPointID string
	Settled         int
	Skipped         int
	Outcome         string
	// NextPeriodStart is the start of the first period left unsettled.
	NextPeriodStart time.Time
}

// Orchestrator walks a metering point through its billing periods in calendar order.
type Orchestrator struct {
	contracts      ContractLookup
	meteringPoints MeteringPointLookup
	loader         DataLoader
	samples        SampleCounter
	store          settlement.ResultStore
	publisher      EventPublisher
	notifier       FailureNotifier
	clock          Clock
	location       *time.Location
	logger         *log.Logger
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPublisher sets the event publisher.
func WithPublisher(publisher EventPublisher) OrchestratorOption {
	return func(o *Orchestrator) { o.publisher = publisher }
}

// WithFailureNotifier sets the failed run notifier.
func WithFailureNotifier(notifier FailureNotifier) OrchestratorOption {
	return func(o *Orchestrator) { o.notifier = notifier }
}

// WithClock overrides the clock.
func WithClock(clock Clock) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets the zone calendar days are evaluated in.
func WithLocation(loc *time.Location) OrchestratorOption {
	return func(o *Orchestrator) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewOrchestrator constructs the orchestrator.
func NewOrchestrator(
	contracts ContractLookup,
	meteringPoints MeteringPointLookup,
	loader DataLoader,
	samples SampleCounter,
	store settlement.ResultStore,
	opts ...OrchestratorOption,
) (*Orchestrator, error) {
	if contracts == nil {
		return nil, errors.New("settlement orchestrator: nil contract lookup")
	}
	if meteringPoints == nil {
		return nil, errors.New("settlement orchestrator: nil metering point lookup")
	}
	if loader == nil {
		return nil, errors.New("settlement orchestrator: nil data loader")
	}
	if samples == nil {
		return nil, errors.New("settlement orchestrator: nil sample counter")
	}
	if store == nil {
		return nil, errors.New("settlement orchestrator: nil result store")
	}
	o := &Orchestrator{
		contracts:      contracts,
		meteringPoints: meteringPoints,
		loader:         loader,
		samples:        samples,
		store:          store,
		clock:          SystemClock{},
		location:       time.UTC,
		logger:         log.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

// AdvanceMeteringPoint settles every closed, complete and unsettled period in order,
// stopping at the first open or incomplete period or at the first failure.
// Not-ready conditions are not errors. Errors are returned for invalid input,
// lookup failures and cancellation.
func (o *Orchestrator) AdvanceMeteringPoint(ctx context.Context, meteringPointID string) (AdvanceSummary, error) {
	summary := AdvanceSummary{MeteringPointID: meteringPointID}
	if meteringPointID == "" {
		return summary, settlement.ErrEmptyMeteringPointID
	}

	contract, err := o.contracts.ActiveContract(ctx, meteringPointID)
	if err != nil {
		return summary, fmt.Errorf("lookup contract: %w", err)
	}
	if contract == nil {
		o.logf("settlement_contract_missing", meteringPointID, time.Time{}, time.Time{}, "")
		return o.finish(summary, OutcomeNotReady), nil
	}
	mp, err := o.meteringPoints.MeteringPoint(ctx, meteringPointID)
	if err != nil {
		return summary, fmt.Errorf("lookup metering point: %w", err)
	}
	if mp == nil {
		o.logf("settlement_metering_point_missing", meteringPointID, time.Time{}, time.Time{}, "")
		return o.finish(summary, OutcomeNotReady), nil
	}

	today := o.today()
	periodStart := calendarDay(contract.BillingAnchor, o.location)
	for {
		summary.NextPeriodStart = periodStart
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		periodEnd, err := settlement.GetFirstPeriodEnd(periodStart, contract.Frequency)
		if err != nil {
			o.logf("settlement_invalid_frequency", meteringPointID, periodStart, time.Time{}, err.Error())
			return summary, err
		}
		if periodEnd.After(today) {
			return o.finish(summary, OutcomeOpen), nil
		}

		done, err := o.store.HasRun(ctx, meteringPointID, periodStart, periodEnd)
		if err != nil {
			return summary, fmt.Errorf("check run: %w", err)
		}
		if done {
			summary.Skipped++
			periodStart = periodEnd
			continue
		}

		received, err := o.samples.CountSamples(ctx, meteringPointID, periodStart, periodEnd)
		if err != nil {
			return summary, fmt.Errorf("count samples: %w", err)
		}
		completeness := settlement.CheckCompleteness(settlement.ExpectedSampleCount(periodStart, periodEnd, resolutionOf(mp)), received)
		if !completeness.IsComplete {
			o.logf("settlement_period_incomplete", meteringPointID, periodStart, periodEnd,
				fmt.Sprintf("expected=%d received=%d", completeness.ExpectedSamples, completeness.ReceivedSamples))
			return o.finish(summary, OutcomeWaiting), nil
		}

		started := o.clock.Now()
		run, err := o.settlePeriod(ctx, contract, mp, periodStart, periodEnd)
		switch {
		case errors.Is(err, settlement.ErrAlreadySettled):
			summary.Skipped++
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			metrics.ObservePeriod(metrics.ResultError, o.clock.Now().Sub(started))
			o.recordFailure(ctx, contract, mp, periodStart, periodEnd, err)
			return o.finish(summary, OutcomeFailed), nil
		default:
			metrics.ObservePeriod(metrics.ResultSuccess, o.clock.Now().Sub(started))
			o.publishCompleted(ctx, run)
			summary.Settled++
		}
		periodStart = periodEnd
	}
}

func (o *Orchestrator) settlePeriod(ctx context.Context, contract *Contract, mp *MeteringPoint, start, end time.Time) (*settlement.SettlementRun, error) {
	data, err := o.loader.Load(ctx, PeriodQuery{
		MeteringPointID: mp.ID,
		GridArea:        mp.GridArea,
		PriceArea:       mp.PriceArea,
		PeriodStart:     start,
		PeriodEnd:       end,
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("settlement orchestrator: no settlement data")
	}

	result := Settle(BuildRequest(mp.ID, start, end, contract, data), data.TariffChange)
	run, err := o.store.Store(ctx, mp.ID, mp.GridArea, result, contract.Frequency)
	if err != nil {
		return nil, err
	}
	o.logf("settlement_period_completed", mp.ID, start, end, "")
	return run, nil
}

// BuildRequest combines contract terms and staged data into a calculator request.
func BuildRequest(meteringPointID string, start, end time.Time, contract *Contract, data *SettlementData) settlement.SettlementRequest {
	return settlement.SettlementRequest{
		MeteringPointID:             meteringPointID,
		PeriodStart:                 start,
		PeriodEnd:                   end,
		Consumption:                 data.Consumption,
		Prices:                      data.Prices,
		GridRates:                   data.GridRates,
		SystemTariffRate:            data.SystemTariffRate,
		TransmissionTariffRate:      data.TransmissionTariffRate,
		ElectricityTaxRate:          data.ElectricityTaxRate,
		GridSubscriptionMonthly:     data.GridSubscriptionMonthly,
		MarginPerKWh:                contract.MarginPerKWh,
		SupplementPerKWh:            contract.SupplementPerKWh,
		SupplierSubscriptionMonthly: contract.SupplierSubscriptionMonthly,
	}
}

// Settle runs the splitter when a tariff change falls inside the period.
func Settle(req settlement.SettlementRequest, change *GridTariffChange) settlement.SettlementResult {
	if change == nil {
		return settlement.Calculate(req)
	}
	return settlement.CalculateWithTariffChange(req, change.EffectiveFrom, change.Rates)
}

func (o *Orchestrator) recordFailure(ctx context.Context, contract *Contract, mp *MeteringPoint, start, end time.Time, cause error) {
	o.logf("settlement_period_failed", mp.ID, start, end, cause.Error())
	run, err := o.store.StoreFailed(ctx, mp.ID, mp.GridArea, start, end, contract.Frequency, cause.Error())
	if err != nil {
		o.logf("settlement_failed_run_store_error", mp.ID, start, end, err.Error())
		return
	}
	if run == nil {
		return
	}
	if o.publisher != nil {
		event := SettlementFailed{
			RunID:           run.ID,
			MeteringPointID: run.MeteringPointID,
			GridArea:        run.GridArea,
			PeriodStart:     run.PeriodStart,
			PeriodEnd:       run.PeriodEnd,
			Version:         run.Version,
			ErrorDetail:     run.ErrorDetail,
			OccurredAt:      o.clock.Now().UTC(),
		}
		if err := o.publisher.PublishSettlementFailed(ctx, event); err != nil {
			o.logf("settlement_event_publish_failed", mp.ID, start, end, err.Error())
		}
	}
	if o.notifier != nil {
		if err := o.notifier.NotifyRunFailed(ctx, *run); err != nil {
			o.logf("settlement_notify_failed", mp.ID, start, end, err.Error())
		}
	}
}

func (o *Orchestrator) publishCompleted(ctx context.Context, run *settlement.SettlementRun) {
	if o.publisher == nil || run == nil {
		return
	}
	event := SettlementCompleted{
		RunID:           run.ID,
		MeteringPointID: run.MeteringPointID,
		GridArea:        run.GridArea,
		PeriodStart:     run.PeriodStart,
		PeriodEnd:       run.PeriodEnd,
		Version:         run.Version,
		TotalKWh:        run.TotalKWh,
		Subtotal:        run.Subtotal,
		VATAmount:       run.VATAmount,
		Total:           run.Total,
		OccurredAt:      o.clock.Now().UTC(),
	}
	if err := o.publisher.PublishSettlementCompleted(ctx, event); err != nil {
		o.logf("settlement_event_publish_failed", run.MeteringPointID, run.PeriodStart, run.PeriodEnd, err.Error())
	}
}

func (o *Orchestrator) finish(summary AdvanceSummary, outcome string) AdvanceSummary {
	summary.Outcome = outcome
	metrics.IncAdvance(outcome)
	return summary
}

func (o *Orchestrator) today() time.Time {
	return calendarDay(o.clock.Now().In(o.location), o.location)
}

// calendarDay keeps t's calendar date and places midnight in loc.
func calendarDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func resolutionOf(mp *MeteringPoint) time.Duration {
	if mp.Resolution <= 0 {
		return time.Hour
	}
	return mp.Resolution
}

func (o *Orchestrator) logf(event, meteringPointID string, start, end time.Time, detail string) {
	if o.logger == nil {
		return
	}
	o.logger.Printf("event=%s metering_point_id=%s period_start=%s period_end=%s detail=%q",
		event, meteringPointID, formatDay(start), formatDay(end), detail)
}

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
