package settlement

import "time"

// MeteringCompleteness compares received samples against the expected count.
type MeteringCompleteness struct {
	ExpectedSamples int
	ReceivedSamples int
	IsComplete      bool
}

// CheckCompleteness reports complete when received >= expected. Extra samples,
// e.g. from corrections, still count as complete.
func CheckCompleteness(expected, received int) MeteringCompleteness {
	return MeteringCompleteness{
		ExpectedSamples: expected,
		ReceivedSamples: received,
		IsComplete:      received >= expected,
	}
}

// ExpectedSampleCount returns the number of samples of the given resolution in [start, end).
func ExpectedSampleCount(start, end time.Time, resolution time.Duration) int {
	if resolution <= 0 || !end.After(start) {
		return 0
	}
	return int(end.Sub(start) / resolution)
}
