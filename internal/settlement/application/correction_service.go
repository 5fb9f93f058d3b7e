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

// CorrectionPreviewRequest names a settled period and its revised readings.
type CorrectionPreviewRequest struct {
	MeteringPointID string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Deltas          []settlement.ConsumptionDelta
}

// CorrectionPreview is a priced correction against the run it revises.
type CorrectionPreview struct {
	OriginalRunID   string
	OriginalVersion int
	Result          settlement.CorrectionResult
}

// CorrectionService prices consumption revisions for settled periods.
type CorrectionService struct {
	history        settlement.RunHistory
	contracts      ContractLookup
	meteringPoints MeteringPointLookup
	loader         DataLoader
	logger         *log.Logger
}

// NewCorrectionService constructs the service.
func NewCorrectionService(history settlement.RunHistory, contracts ContractLookup, meteringPoints MeteringPointLookup, loader DataLoader, logger *log.Logger) (*CorrectionService, error) {
	if history == nil {
		return nil, errors.New("correction service: nil run history")
	}
	if contracts == nil {
		return nil, errors.New("correction service: nil contract lookup")
	}
	if meteringPoints == nil {
		return nil, errors.New("correction service: nil metering point lookup")
	}
	if loader == nil {
		return nil, errors.New("correction service: nil data loader")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CorrectionService{
		history:        history,
		contracts:      contracts,
		meteringPoints: meteringPoints,
		loader:         loader,
		logger:         logger,
	}, nil
}

// Preview prices the deltas with the rates that applied to the period.
// It fails with settlement.ErrRunNotFound when the period has no completed run.
func (s *CorrectionService) Preview(ctx context.Context, req CorrectionPreviewRequest) (*CorrectionPreview, error) {
	preview, err := s.preview(ctx, req)
	if err != nil {
		metrics.IncCorrection(metrics.ResultError)
		s.logger.Printf("event=correction_preview_failed metering_point_id=%s period_start=%s period_end=%s error=%v",
			req.MeteringPointID, formatDay(req.PeriodStart), formatDay(req.PeriodEnd), err)
		return nil, err
	}
	metrics.IncCorrection(metrics.ResultSuccess)
	return preview, nil
}

func (s *CorrectionService) preview(ctx context.Context, req CorrectionPreviewRequest) (*CorrectionPreview, error) {
	if req.MeteringPointID == "" {
		return nil, settlement.ErrEmptyMeteringPointID
	}
	if req.PeriodStart.IsZero() || !req.PeriodEnd.After(req.PeriodStart) {
		return nil, settlement.ErrInvalidPeriod
	}

	deltas, err := periodDeltas(req)
	if err != nil {
		return nil, err
	}

	run, _, err := s.history.LatestCompletedRun(ctx, req.MeteringPointID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, settlement.ErrRunNotFound
	}

	contract, err := s.contracts.ActiveContract(ctx, req.MeteringPointID)
	if err != nil {
		return nil, fmt.Errorf("lookup contract: %w", err)
	}
	if contract == nil {
		return nil, ErrContractNotFound
	}
	mp, err := s.meteringPoints.MeteringPoint(ctx, req.MeteringPointID)
	if err != nil {
		return nil, fmt.Errorf("lookup metering point: %w", err)
	}
	if mp == nil {
		return nil, ErrMeteringPointNotFound
	}

	data, err := s.loader.Load(ctx, PeriodQuery{
		MeteringPointID: mp.ID,
		GridArea:        mp.GridArea,
		PriceArea:       mp.PriceArea,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("correction service: no settlement data")
	}

	correction := settlement.CorrectionRequest{
		MeteringPointID:        req.MeteringPointID,
		PeriodStart:            req.PeriodStart,
		PeriodEnd:              req.PeriodEnd,
		Deltas:                 deltas,
		Prices:                 data.Prices,
		GridRates:              data.GridRates,
		SystemTariffRate:       data.SystemTariffRate,
		TransmissionTariffRate: data.TransmissionTariffRate,
		ElectricityTaxRate:     data.ElectricityTaxRate,
		MarginPerKWh:           contract.MarginPerKWh,
		SupplementPerKWh:       contract.SupplementPerKWh,
	}

	var result settlement.CorrectionResult
	if data.TariffChange != nil {
		result = settlement.CalculateCorrectionWithTariffChange(correction, data.TariffChange.EffectiveFrom, data.TariffChange.Rates)
	} else {
		result = settlement.CalculateCorrection(correction)
	}

	return &CorrectionPreview{
		OriginalRunID:   run.ID,
		OriginalVersion: run.Version,
		Result:          result,
	}, nil
}

// periodDeltas rejects deltas outside [PeriodStart, PeriodEnd) and reads their
// hours in the period's location.
func periodDeltas(req CorrectionPreviewRequest) ([]settlement.ConsumptionDelta, error) {
	loc := req.PeriodStart.Location()
	deltas := make([]settlement.ConsumptionDelta, len(req.Deltas))
	for i, delta := range req.Deltas {
		if delta.Timestamp.Before(req.PeriodStart) || !delta.Timestamp.Before(req.PeriodEnd) {
			return nil, fmt.Errorf("%w: delta at %s outside period", settlement.ErrInvalidPeriod, delta.Timestamp.Format(time.RFC3339))
		}
		delta.Timestamp = delta.Timestamp.In(loc)
		deltas[i] = delta
	}
	return deltas, nil
}
