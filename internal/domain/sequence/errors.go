package sequence

import (
	ierr "github.com/bizcore/bizcore/internal/errors"
)

func NewNotFoundError(code string) error {
	return ierr.NewError("sequence not found").
		WithHintf("No sequence configured for code %s", code).
		Mark(ierr.ErrNotFound)
}

func NewExhaustedError(code string, max int64) error {
	return ierr.NewError("sequence exhausted").
		WithHintf("Sequence %s reached its maximum value %d", code, max).
		WithReportableDetails(map[string]any{
			"code":      code,
			"max_value": max,
		}).
		Mark(ierr.ErrSequenceExhausted)
}

func NewContentionError(code string, attempts int) error {
	return ierr.NewError("sequence contention").
		WithHintf("Sequence %s is under heavy contention, retry with backoff", code).
		WithReportableDetails(map[string]any{
			"code":     code,
			"attempts": attempts,
		}).
		Mark(ierr.ErrSequenceContention)
}
