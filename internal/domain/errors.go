package domain

import "errors"

// Sentinel error kinds. Stage errors wrap one of these so callers can match
// with errors.Is regardless of the message detail.
var (
	// ErrMalformedRecord marks a record with an unusable date or coordinate.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrEmptyInput marks a run with zero records, where the date range is undefined.
	ErrEmptyInput = errors.New("empty input")

	// ErrInvalidGeometry marks a zone that cannot take part in containment tests.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrConfiguration marks an unusable option: unknown policy names,
	// duplicate categories, or a label collision.
	ErrConfiguration = errors.New("configuration error")
)
