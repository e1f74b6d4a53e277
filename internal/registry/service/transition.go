package service

import (
	"context"
	"strings"

	"sasana/internal/registry/models"
	"sasana/internal/registry/workflow"
	dErrors "sasana/pkg/domainerrors"
	"sasana/pkg/platform/audit"
	"sasana/pkg/requestcontext"
)

// Transition applies a workflow action to a record. The record is locked
// for the duration of the transaction, so concurrent transitions on the
// same record serialize instead of racing.
func (s *Service) Transition(ctx context.Context, family string, id int64, action models.WorkflowAction, actor, reason string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.Transition", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}
	if action == models.ActionAttachScan {
		return nil, dErrors.New(dErrors.CodeValidation,
			"scanned documents are attached through AttachScannedDocument")
	}

	now := requestcontext.Now(ctx)
	var from models.WorkflowStatus
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.GetRecordForUpdate(txCtx, f, id)
		if err != nil {
			return err
		}
		from = r.Status
		expected := r.Version
		if err := workflow.Transition(f, r, action, actor, reason, now); err != nil {
			return err
		}
		if err := s.store.UpdateRecord(txCtx, f, r, expected); err != nil {
			return err
		}
		if err := s.emitAudit(txCtx, audit.Event{
			Family:     f.Name,
			RecordID:   r.InternalID,
			PublicCode: r.PublicCode,
			Action:     audit.ActionWorkflowMoved,
			ActorID:    actor,
			Reason:     strings.TrimSpace(reason),
			Details: map[string]string{
				"action": string(action),
				"from":   string(from),
				"to":     string(r.Status),
			},
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			s.incrementTransitionRejected(f.Name)
		}
		return nil, s.wrapStoreErr(err, "transition "+f.Name+" record")
	}

	s.incrementTransition(f.Name, string(action))
	s.logger.InfoContext(ctx, "workflow transition applied",
		"family", f.Name, "public_code", rec.PublicCode, "action", string(action),
		"from", string(from), "to", string(rec.Status), "actor", actor)
	return rec, nil
}

// AttachScannedDocument stores the signed-scan reference and takes the
// attach_scan edge of the family's workflow in one step.
func (s *Service) AttachScannedDocument(ctx context.Context, family string, id int64, documentRef, actor string) (rec *models.Record, err error) {
	ctx, span := s.startSpan(ctx, "registry.AttachScannedDocument", family)
	defer func() { endSpan(span, err) }()

	f, err := s.familyOf(family)
	if err != nil {
		return nil, err
	}
	actor, err = requireActor(actor)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var from models.WorkflowStatus
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.GetRecordForUpdate(txCtx, f, id)
		if err != nil {
			return err
		}
		from = r.Status
		expected := r.Version
		if err := workflow.AttachScan(f, r, actor, documentRef, now); err != nil {
			return err
		}
		if err := s.store.UpdateRecord(txCtx, f, r, expected); err != nil {
			return err
		}
		if err := s.emitAudit(txCtx, audit.Event{
			Family:     f.Name,
			RecordID:   r.InternalID,
			PublicCode: r.PublicCode,
			Action:     audit.ActionScanAttached,
			ActorID:    actor,
			Details: map[string]string{
				"document_ref": r.ScannedDocumentRef,
				"from":         string(from),
				"to":           string(r.Status),
			},
		}); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			s.incrementTransitionRejected(f.Name)
		}
		return nil, s.wrapStoreErr(err, "attach scan to "+f.Name+" record")
	}

	s.incrementTransition(f.Name, string(models.ActionAttachScan))
	s.logger.InfoContext(ctx, "scanned document attached",
		"family", f.Name, "public_code", rec.PublicCode, "actor", actor)
	return rec, nil
}
