package s0_data

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wonny/equindex/internal/contracts"
)

// ErrNotFound is returned by point lookups with no matching row
var ErrNotFound = errors.New("not found")

// ClassifyError wraps a storage error as contracts.TransientError or contracts.PersistenceError.
// ⭐ SSOT: pgx error classification happens here only
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53"):
			// connection exception, insufficient resources
			return &contracts.TransientError{Op: op, Err: err}
		case pgErr.Code == "40001" || pgErr.Code == "40P01" || pgErr.Code == "57P01":
			// serialization failure, deadlock, admin shutdown
			return &contracts.TransientError{Op: op, Err: err}
		default:
			return &contracts.PersistenceError{Op: op, Err: err}
		}
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connErr) || errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return &contracts.TransientError{Op: op, Err: err}
	}

	return fmt.Errorf("%s: %w", op, err)
}
