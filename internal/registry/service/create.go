package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sasana/internal/registry/codes"
	registrymetrics "sasana/internal/registry/metrics"
	"sasana/internal/registry/models"
	"sasana/internal/registry/store"
	dErrors "sasana/pkg/domainerrors"
	"sasana/pkg/platform/audit"
	"sasana/pkg/platform/sentinel"
	"sasana/pkg/requestcontext"
)

// Create registers a new record and allocates its public code. The code is
// computed client-side and inserted under the unique constraint; lost races
// are retried with an advancing floor so no attempt reproposes a number
// that already failed. Each attempt runs in its own transaction.
func (s *Service) Create(ctx context.Context, family string, input models.RecordInput, actor string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.Create", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a name is required")
	}

	now := requestcontext.Now(ctx)
	scope := codes.ScopeKey(f, now)
	base := models.NewRecord(f.Name, input, actor, now)

	start := time.Now()
	rec, err = s.allocate(ctx, f, scope, base)
	s.observeAllocation(start)
	if err != nil {
		return nil, err
	}

	s.incrementCodeIssued(f.Name)
	s.logger.InfoContext(ctx, "record created",
		"family", f.Name, "public_code", rec.PublicCode, "internal_id", rec.InternalID, "actor", actor)
	return rec, nil
}

// errRetiredCandidate marks an attempt that proposed a tombstoned code; the
// loop advances the floor past it without touching the database constraint.
type errRetiredCandidate struct {
	number int64
	code   string
}

func (e errRetiredCandidate) Error() string {
	return fmt.Sprintf("candidate code %s is retired", e.code)
}

func (s *Service) allocate(ctx context.Context, f models.Family, scope string, base *models.Record) (*models.Record, error) {
	cfg := s.alloc
	var floor int64

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		s.incrementAllocationAttempt()

		var (
			created   *models.Record
			candidate int64
		)
		txErr := s.store.RunInTx(ctx, func(txCtx context.Context) error {
			// Cheap drift repair up front; unconditional repair happens
			// only after a proven primary-key collision.
			if err := s.store.ResyncSequence(txCtx, f, false); err != nil {
				return err
			}

			n, err := s.nextCandidate(txCtx, f, scope, floor)
			if err != nil {
				return err
			}
			candidate = n

			code, err := codes.Format(f, scope, n)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeAllocationExhausted, "code space exhausted")
			}

			if s.retired != nil {
				tombstoned, err := s.retired.IsRetired(txCtx, f.Name, code)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeUnavailable, "retired-code index unavailable")
				}
				if tombstoned {
					return errRetiredCandidate{number: n, code: code}
				}
			}

			r := base.Clone()
			r.PublicCode = code
			if err := s.store.InsertRecord(txCtx, f, r); err != nil {
				return err
			}
			if err := s.emitAudit(txCtx, audit.Event{
				Family:     f.Name,
				RecordID:   r.InternalID,
				PublicCode: r.PublicCode,
				Action:     audit.ActionRecordCreated,
				ActorID:    r.CreatedBy,
			}); err != nil {
				return err
			}
			created = r
			return nil
		})
		if txErr == nil {
			return created, nil
		}

		var retiredHit errRetiredCandidate
		var domainErr *dErrors.Error
		switch {
		case errors.As(txErr, &retiredHit):
			s.incrementAllocationConflict(registrymetrics.ConflictKindRetired)
			if retiredHit.number > floor {
				floor = retiredHit.number
			}

		case store.IsCodeConflict(txErr, f):
			// Another writer landed this number first. Advance past it and
			// try the next one.
			s.incrementAllocationConflict(registrymetrics.ConflictKindCode)
			if candidate > floor {
				floor = candidate
			}
			s.logger.DebugContext(ctx, "code allocation lost race",
				"family", f.Name, "candidate", candidate, "attempt", attempt)

		case store.IsPKConflict(txErr, f):
			// The internal sequence handed out an id that is already used:
			// proven drift. Repair unconditionally; the candidate number
			// itself was never contested, so the floor stays.
			s.incrementAllocationConflict(registrymetrics.ConflictKindPrimaryKey)
			s.logger.WarnContext(ctx, "primary key collision, repairing sequence",
				"family", f.Name, "attempt", attempt)
			if err := s.ResyncSequence(ctx, f.Name, true); err != nil {
				return nil, err
			}

		case errors.Is(txErr, sentinel.ErrConflict):
			// A payload column collided (phone, email): retrying cannot
			// help, the input itself is at fault.
			return nil, s.wrapUniqueViolation(txErr)

		case errors.As(txErr, &domainErr):
			return nil, txErr

		default:
			return nil, s.wrapStoreErr(txErr, "create "+f.Name+" record")
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		if err := sleepCtx(ctx, cfg.BackoffFor(attempt)); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "create canceled while backing off")
		}
	}

	s.incrementAllocationExhausted()
	s.logger.ErrorContext(ctx, "code allocation exhausted",
		"family", f.Name, "attempts", cfg.MaxAttempts)
	return nil, dErrors.Newf(dErrors.CodeAllocationExhausted,
		"could not allocate a %s code after %d attempts; please retry", f.Name, cfg.MaxAttempts)
}

// nextCandidate proposes the next code number under the configured
// strategy. Both strategies respect the floor accumulated from lost races.
func (s *Service) nextCandidate(ctx context.Context, f models.Family, scope string, floor int64) (int64, error) {
	switch s.alloc.Strategy {
	case codes.StrategyCounter:
		return s.store.NextCodeNumber(ctx, f, scope, floor)
	default:
		observedMax, err := s.store.MaxCodeNumber(ctx, f, scope)
		if err != nil {
			return 0, err
		}
		n, err := codes.Candidate(f, observedMax, floor)
		if err != nil {
			return 0, dErrors.Wrap(err, dErrors.CodeAllocationExhausted, "code space exhausted")
		}
		return n, nil
	}
}

// ResyncSequence repairs the family's internal-id sequence. Exposed for
// operational tooling; the allocation loop calls it after a primary-key
// collision.
func (s *Service) ResyncSequence(ctx context.Context, family string, force bool) (err error) {
	ctx, span := s.startSpan(ctx, "registry.ResyncSequence", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return err
	}
	if err := s.store.ResyncSequence(ctx, f, force); err != nil {
		return s.wrapStoreErr(err, "resync "+f.Name+" sequence")
	}
	s.incrementSequenceResync(f.Name)
	s.logger.InfoContext(ctx, "sequence resynced", "family", f.Name, "force", force)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
