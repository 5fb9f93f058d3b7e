package settlement

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is a billing frequency.
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// ParseFrequency normalizes a frequency string.
func ParseFrequency(value string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(value)))
	if !f.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidFrequency, value)
	}
	return f, nil
}

// IsValid reports whether the frequency is known.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly:
		return true
	default:
		return false
	}
}

// String returns the raw frequency.
func (f Frequency) String() string { return string(f) }

// GetFirstPeriodEnd returns the exclusive end date of the period starting at start.
//
//	daily:     start + 1 day
//	weekly:    the Monday after the Sunday closing start's Monday-Sunday week
//	monthly:   1st of the following month
//	quarterly: 1st of the following calendar quarter
func GetFirstPeriodEnd(start time.Time, frequency Frequency) (time.Time, error) {
	if start.IsZero() {
		return time.Time{}, ErrInvalidPeriod
	}
	day := truncateToDay(start)

	switch frequency {
	case FrequencyDaily:
		return day.AddDate(0, 0, 1), nil
	case FrequencyWeekly:
		daysToMonday := (8 - int(day.Weekday())) % 7
		if daysToMonday == 0 {
			daysToMonday = 7
		}
		return day.AddDate(0, 0, daysToMonday), nil
	case FrequencyMonthly:
		return time.Date(day.Year(), day.Month()+1, 1, 0, 0, 0, 0, day.Location()), nil
	case FrequencyQuarterly:
		quarterStart := ((int(day.Month())-1)/3)*3 + 1
		return time.Date(day.Year(), time.Month(quarterStart+3), 1, 0, 0, 0, 0, day.Location()), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, string(frequency))
	}
}
