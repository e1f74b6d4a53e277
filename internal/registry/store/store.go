// Package store defines the persistence contract for registry records and
// the error vocabulary the allocation loop classifies. Three backends
// implement it: postgres, sqlite and an in-memory store for tests.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sasana/internal/registry/models"
	"sasana/pkg/platform/sentinel"
)

// Store persists records for every registered family. SQL implementations
// are transaction-aware: methods called under RunInTx share the transaction
// carried in the context.
type Store interface {
	// RunInTx runs fn atomically. Store calls made with the context fn
	// receives join the same transaction; any error rolls everything back.
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error

	// InsertRecord persists a new record and fills in InternalID as
	// assigned by the backend's sequence. Uniqueness races surface as
	// *UniqueViolation carrying the canonical constraint name.
	InsertRecord(ctx context.Context, f models.Family, rec *models.Record) error

	// GetRecord loads a live record by internal id. Soft-deleted rows and
	// absent ids both return sentinel.ErrNotFound.
	GetRecord(ctx context.Context, f models.Family, id int64) (*models.Record, error)

	// GetRecordByCode loads a live record by public code.
	GetRecordByCode(ctx context.Context, f models.Family, code string) (*models.Record, error)

	// GetRecordForUpdate is GetRecord with the row locked for the duration
	// of the surrounding transaction, serializing concurrent transitions.
	GetRecordForUpdate(ctx context.Context, f models.Family, id int64) (*models.Record, error)

	// UpdateRecord writes the full mutable state of rec, guarded by
	// expectedVersion. A version mismatch returns sentinel.ErrStaleVersion;
	// a missing or soft-deleted row returns sentinel.ErrNotFound. The
	// public code is never written.
	UpdateRecord(ctx context.Context, f models.Family, rec *models.Record, expectedVersion int64) error

	// MaxCodeNumber returns the highest numeric code suffix present for
	// the family and scope, including soft-deleted rows, or 0 when none.
	MaxCodeNumber(ctx context.Context, f models.Family, scope string) (int64, error)

	// NextCodeNumber atomically advances the family's counter for scope and
	// returns the next number to try. The counter never moves backwards and
	// never returns a value at or below floor. First use seeds the counter
	// from the data already in the table.
	NextCodeNumber(ctx context.Context, f models.Family, scope string, floor int64) (int64, error)

	// SeedCounter initializes or raises the family's counter for scope to
	// the highest code already stored, without consuming a number. Used by
	// operators turning on counter allocation over existing data.
	SeedCounter(ctx context.Context, f models.Family, scope string) (int64, error)

	// ListDeletedCodes returns the public codes of soft-deleted rows, for
	// back-filling the tombstone index.
	ListDeletedCodes(ctx context.Context, f models.Family) ([]DeletedCode, error)

	// ResyncSequence repairs the backend's internal-id sequence for the
	// family. With force it re-derives the sequence from the table
	// unconditionally; without, it only advances a sequence that has
	// fallen behind MAX(internal_id).
	ResyncSequence(ctx context.Context, f models.Family, force bool) error
}

// DeletedCode is one soft-deleted row's code with the deletion stamps the
// tombstone index keeps.
type DeletedCode struct {
	PublicCode string
	DeletedBy  string
	DeletedAt  time.Time
}

// UniqueViolation is a uniqueness race surfaced by a backend, normalized to
// a canonical constraint name so the allocation loop can tell a lost code
// race from sequence drift from a caller mistake.
type UniqueViolation struct {
	Constraint string
}

func (e *UniqueViolation) Error() string {
	return fmt.Sprintf("unique constraint %s violated", e.Constraint)
}

// Is lets errors.Is(err, sentinel.ErrConflict) match any unique violation.
func (e *UniqueViolation) Is(target error) bool {
	return target == sentinel.ErrConflict
}

// Canonical constraint names. The DDL names constraints to match; backends
// that report something else (sqlite reports "table.column") normalize to
// these.
func PKConstraint(f models.Family) string { return "pk_" + f.Table }

func CodeConstraint(f models.Family) string { return UniqueConstraint(f, "public_code") }

func UniqueConstraint(f models.Family, column string) string {
	return fmt.Sprintf("uq_%s_%s", f.Table, column)
}

// ViolatedConstraint extracts the canonical constraint name when err is (or
// wraps) a unique violation.
func ViolatedConstraint(err error) (string, bool) {
	var uv *UniqueViolation
	if errors.As(err, &uv) {
		return uv.Constraint, true
	}
	return "", false
}

// IsCodeConflict reports whether err is a lost race on the family's public
// code.
func IsCodeConflict(err error, f models.Family) bool {
	c, ok := ViolatedConstraint(err)
	return ok && c == CodeConstraint(f)
}

// IsPKConflict reports whether err is a primary-key collision, the signature
// of a drifted internal-id sequence.
func IsPKConflict(err error, f models.Family) bool {
	c, ok := ViolatedConstraint(err)
	return ok && c == PKConstraint(f)
}
