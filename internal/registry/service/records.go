package service

import (
	"context"
	"strings"

	"sasana/internal/registry/models"
	"sasana/internal/registry/store/retired"
	dErrors "sasana/pkg/domainerrors"
	"sasana/pkg/platform/audit"
	"sasana/pkg/requestcontext"
)

// Get loads a live record by internal id. Soft-deleted records are not
// found.
func (s *Service) Get(ctx context.Context, family string, id int64) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.Get", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	rec, err = s.store.GetRecord(ctx, f, id)
	if err != nil {
		return nil, s.wrapStoreErr(err, "load "+f.Name+" record")
	}
	return rec, nil
}

// GetByCode loads a live record by its public code.
func (s *Service) GetByCode(ctx context.Context, family, code string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.GetByCode", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a public code is required")
	}
	rec, err = s.store.GetRecordByCode(ctx, f, code)
	if err != nil {
		return nil, s.wrapStoreErr(err, "load "+f.Name+" record")
	}
	return rec, nil
}

// Update applies a payload patch under optimistic concurrency. The caller
// must present the version it read; a mismatch means someone else wrote in
// between and the caller has to reload.
func (s *Service) Update(ctx context.Context, family string, id int64, patch models.RecordPatch, actor string, expectedVersion int64) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.Update", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}
	if expectedVersion < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "the record version you read is required")
	}
	if patch.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeValidation, "the patch changes nothing")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a name is required")
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.GetRecordForUpdate(txCtx, f, id)
		if err != nil {
			return err
		}
		r.ApplyPatch(patch)
		r.Touch(actor, now)
		if err := s.store.UpdateRecord(txCtx, f, r, expectedVersion); err != nil {
			return err
		}
		if err := s.emitAudit(txCtx, audit.Event{
			Family:     f.Name,
			RecordID:   r.InternalID,
			PublicCode: r.PublicCode,
			Action:     audit.ActionRecordUpdated,
			ActorID:    actor,
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, s.wrapStoreErr(err, "update "+f.Name+" record")
	}

	s.logger.InfoContext(ctx, "record updated",
		"family", f.Name, "public_code", rec.PublicCode, "version", rec.Version, "actor", actor)
	return rec, nil
}

// SoftDelete hides the record and retires its public code. The row stays so
// the code can never be issued again; the tombstone index additionally
// survives any future purge of deleted rows.
func (s *Service) SoftDelete(ctx context.Context, family string, id int64, actor string) (err error) {
	ctx, span := s.startSpan(ctx, "registry.SoftDelete", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return err
	}

	now := requestcontext.Now(ctx)
	var code string
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.GetRecordForUpdate(txCtx, f, id)
		if err != nil {
			return err
		}
		expected := r.Version
		r.IsDeleted = true
		r.Touch(actor, now)
		if err := s.store.UpdateRecord(txCtx, f, r, expected); err != nil {
			return err
		}
		if s.retired != nil {
			entry := retired.Entry{Family: f.Name, PublicCode: r.PublicCode, RetiredBy: actor, RetiredAt: now}
			if err := s.retired.Retire(txCtx, entry); err != nil {
				return dErrors.Wrap(err, dErrors.CodeUnavailable, "retire public code")
			}
		}
		if err := s.emitAudit(txCtx, audit.Event{
			Family:     f.Name,
			RecordID:   r.InternalID,
			PublicCode: r.PublicCode,
			Action:     audit.ActionRecordSoftDeleted,
			ActorID:    actor,
		}); err != nil {
			return err
		}
		code = r.PublicCode
		return nil
	})
	if err != nil {
		return s.wrapStoreErr(err, "delete "+f.Name+" record")
	}

	s.incrementRecordSoftDeleted(f.Name)
	s.logger.InfoContext(ctx, "record soft-deleted",
		"family", f.Name, "public_code", code, "actor", actor)
	return nil
}
