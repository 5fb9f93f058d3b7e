package application

import "errors"

var (
	// ErrContractNotFound is returned when no active contract exists for a metering point.
	ErrContractNotFound = errors.New("settlement: contract not found")
	// ErrMeteringPointNotFound is returned when metering point reference data is missing.
	ErrMeteringPointNotFound = errors.New("settlement: metering point not found")
)
