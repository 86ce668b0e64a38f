package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"

	ierr "github.com/bizcore/bizcore/internal/errors"
)

// SQLSTATE codes the core cares about
const (
	pqLockNotAvailable     = "55P03"
	pqQueryCanceled        = "57014"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqUniqueViolation      = "23505"
)

// MapError classifies a database error into the core taxonomy. Lock and
// serialization conflicts become contention (retryable with backoff by the
// caller), cancellation and connection loss become transient, everything
// else stays a database error.
func MapError(err error, op string) error {
	if err == nil {
		return nil
	}

	if err == sql.ErrNoRows {
		return ierr.WithError(err).
			WithHint("Record not found").
			Mark(ierr.ErrNotFound)
	}

	if ierr.Is(err, context.DeadlineExceeded) || ierr.Is(err, context.Canceled) {
		return ierr.WithError(err).
			WithHintf("%s aborted", op).
			Mark(ierr.ErrTransient)
	}

	var pqErr *pq.Error
	if ierr.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqLockNotAvailable, pqSerializationFailure, pqDeadlockDetected:
			return ierr.WithError(err).
				WithHintf("%s lost a lock conflict", op).
				Mark(ierr.ErrSequenceContention)
		case pqQueryCanceled:
			return ierr.WithError(err).
				WithHintf("%s timed out", op).
				Mark(ierr.ErrTransient)
		case pqUniqueViolation:
			return ierr.WithError(err).
				WithHintf("%s hit a duplicate", op).
				Mark(ierr.ErrAlreadyExists)
		}
		if strings.HasPrefix(string(pqErr.Code), "08") { // connection exceptions
			return ierr.WithError(err).
				WithHintf("%s lost the connection", op).
				Mark(ierr.ErrTransient)
		}
	}

	return ierr.WithError(err).
		WithHintf("%s failed", op).
		Mark(ierr.ErrDatabase)
}
