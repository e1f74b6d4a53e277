package service

import (
	"context"
	"strings"
	"time"

	"sasana/internal/registry/models"
	"sasana/internal/registry/workflow"
	"sasana/pkg/platform/audit"
	"sasana/pkg/requestcontext"
)

// reprintMutation applies one reprint sub-machine step to a locked record.
type reprintMutation func(f models.Family, r *models.Record, actor string, now time.Time) error

// RequestReprint opens a certificate-reissue request on a record that holds
// a printed certificate. Only one request can be in flight per record.
func (s *Service) RequestReprint(ctx context.Context, family string, id int64, actor, reason string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.RequestReprint", family)
	defer func() { endSpan(span, err) }()

	rec, err = s.applyReprint(ctx, family, id, actor, audit.ActionReprintRequested, reason,
		func(f models.Family, r *models.Record, actor string, now time.Time) error {
			return workflow.RequestReprint(f, r, actor, reason, now)
		})
	if err != nil {
		return nil, err
	}
	s.incrementReprintRequest(rec.Family)
	return rec, nil
}

// AcceptReprint moves a pending reissue request to accepted.
func (s *Service) AcceptReprint(ctx context.Context, family string, id int64, actor string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.AcceptReprint", family)
	defer func() { endSpan(span, err) }()

	return s.applyReprint(ctx, family, id, actor, audit.ActionReprintAccepted, "",
		func(f models.Family, r *models.Record, actor string, now time.Time) error {
			return workflow.AcceptReprint(f, r, actor, now)
		})
}

// RejectReprint settles a pending reissue request as refused. A reason is
// required, mirroring workflow rejection.
func (s *Service) RejectReprint(ctx context.Context, family string, id int64, actor, reason string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.RejectReprint", family)
	defer func() { endSpan(span, err) }()

	return s.applyReprint(ctx, family, id, actor, audit.ActionReprintRejected, reason,
		func(f models.Family, r *models.Record, actor string, now time.Time) error {
			return workflow.RejectReprint(f, r, actor, reason, now)
		})
}

// CompleteReprint settles an accepted reissue request as done.
func (s *Service) CompleteReprint(ctx context.Context, family string, id int64, actor string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.CompleteReprint", family)
	defer func() { endSpan(span, err) }()

	return s.applyReprint(ctx, family, id, actor, audit.ActionReprintCompleted, "",
		func(f models.Family, r *models.Record, actor string, now time.Time) error {
			return workflow.CompleteReprint(f, r, actor, now)
		})
}

// applyReprint is the shared load-mutate-store-audit skeleton of the four
// reprint operations.
func (s *Service) applyReprint(ctx context.Context, family string, id int64, actor, auditAction, reason string, mutate reprintMutation) (rec *models.Record, err error) {
	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.GetRecordForUpdate(txCtx, f, id)
		if err != nil {
			return err
		}
		expected := r.Version
		if err := mutate(f, r, actor, now); err != nil {
			return err
		}
		if err := s.store.UpdateRecord(txCtx, f, r, expected); err != nil {
			return err
		}
		if err := s.emitAudit(txCtx, audit.Event{
			Family:     f.Name,
			RecordID:   r.InternalID,
			PublicCode: r.PublicCode,
			Action:     auditAction,
			ActorID:    actor,
			Reason:     strings.TrimSpace(reason),
			Details:    map[string]string{"reprint_status": string(r.ReprintStatus)},
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, s.wrapStoreErr(err, auditAction)
	}

	s.logger.InfoContext(ctx, "reprint state changed",
		"family", f.Name, "public_code", rec.PublicCode,
		"reprint_status", string(rec.ReprintStatus), "actor", actor)
	return rec, nil
}
