package settlement

import "errors"

var (
	// ErrEmptyMeteringPointID is returned when metering point id is empty.
	ErrEmptyMeteringPointID = errors.New("settlement: empty metering point id")
	// ErrInvalidPeriod is returned when a period is zero or not strictly increasing.
	ErrInvalidPeriod = errors.New("settlement: invalid period")
	// ErrInvalidFrequency is returned for an unrecognized billing frequency.
	ErrInvalidFrequency = errors.New("settlement: invalid billing frequency")
	// ErrMissingRegulatedRate is returned when a mandatory flat rate is absent for a period.
	ErrMissingRegulatedRate = errors.New("settlement: missing regulated rate")
	// ErrAlreadySettled is returned when a completed run already exists for the period.
	ErrAlreadySettled = errors.New("settlement: period already settled")
	// ErrRunNotFound is returned when a settlement run is not found.
	ErrRunNotFound = errors.New("settlement: run not found")
)
