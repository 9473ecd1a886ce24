package analytics

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the record store
	ErrStoreUnavailable = errors.New("record store unavailable")

	// ErrInvalidWeeks is returned for a weekly request outside [1, MaxWeeks]
	ErrInvalidWeeks = errors.New("invalid number of weeks")

	// ErrUnknownMetric is returned for an unknown series metric
	ErrUnknownMetric = errors.New("unknown metric")
)
