package metering

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SampleCounter counts received metering samples.
type SampleCounter struct {
	db *sql.DB
}

// NewSampleCounter constructs a counter.
func NewSampleCounter(db *sql.DB) (*SampleCounter, error) {
	if db == nil {
		return nil, errors.New("sample counter: nil db")
	}
	return &SampleCounter{db: db}, nil
}

// CountSamples counts samples in [start, end).
func (c *SampleCounter) CountSamples(ctx context.Context, meteringPointID string, start, end time.Time) (int, error) {
	if c == nil || c.db == nil {
		return 0, errors.New("sample counter: nil db")
	}
	if meteringPointID == "" {
		return 0, errors.New("sample counter: empty metering point id")
	}
	var count int
	err := c.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM metering_samples
WHERE metering_point_id = $1 AND ts >= $2 AND ts < $3`, meteringPointID, start.UTC(), end.UTC()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
