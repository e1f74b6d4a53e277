package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"sasana/internal/registry/store"
	"sasana/pkg/platform/sentinel"
)

const uniqueViolationCode = "23505"

// translateError normalizes driver errors into the store vocabulary. The
// store takes whatever *sql.DB the caller opened, so both pgx stdlib and
// lib/pq error shapes are handled.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == uniqueViolationCode {
			return &store.UniqueViolation{Constraint: pgErr.ConstraintName}
		}
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if string(pqErr.Code) == uniqueViolationCode {
			return &store.UniqueViolation{Constraint: pqErr.Constraint}
		}
		return err
	}

	if isUnavailable(err) {
		return fmt.Errorf("%v: %w", err, sentinel.ErrUnavailable)
	}
	return err
}

// isUnavailable reports connectivity-class failures, which the service maps
// to an infrastructure error instead of retrying the allocation loop.
func isUnavailable(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
