package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store (or is soft-deleted)
// - ErrConflict: a uniqueness or concurrency fact blocked the write
// - ErrStaleVersion: stored version_number no longer matches the caller's read
// - ErrSequenceDrift: surrogate-key counter disagrees with stored rows
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backing store or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domainerrors directly.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrStaleVersion  = errors.New("stale version")
	ErrSequenceDrift = errors.New("sequence drift")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
