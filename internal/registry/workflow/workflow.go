// Package workflow applies certification-workflow actions to records. It
// owns transition legality, actor/timestamp stamping and the reprint
// sub-machine. It never talks to storage: callers load the record, let this
// package mutate it, and persist the result under the version check.
package workflow

import (
	"strings"
	"time"

	dErrors "sasana/pkg/domainerrors"

	"sasana/internal/registry/models"
)

// Transition applies action to rec for the given family, or returns a typed
// error and leaves rec untouched. On success the matching stamps are set,
// the status advances and the version is bumped exactly once.
func Transition(f models.Family, rec *models.Record, action models.WorkflowAction, actor, reason string, now time.Time) error {
	if !action.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown workflow action %q", action)
	}
	if action == models.ActionAttachScan {
		// Attachment carries a document payload; AttachScan owns that edge.
		return dErrors.New(dErrors.CodeValidation, "scanned documents are attached through AttachScan")
	}
	next, ok := f.Transitions.Next(rec.Status, action)
	if !ok {
		return invalidTransition(f, rec, action)
	}
	reason = strings.TrimSpace(reason)
	if action == models.ActionReject && reason == "" {
		return dErrors.New(dErrors.CodeValidation, "a rejection reason is required")
	}

	switch action {
	case models.ActionMarkPrinted:
		rec.ApplyPrinted(actor, now)
	case models.ActionApprove:
		rec.ApplyApproved(actor, now)
	case models.ActionReject:
		rec.ApplyRejected(actor, reason, now)
	case models.ActionResetToPending:
		rec.ApplyReset()
	}
	rec.Status = next
	rec.Touch(actor, now)
	return nil
}

// AttachScan records a scanned signed document on rec and takes the
// attach_scan edge. Attachment is a side effect with its own payload, so it
// has a dedicated entry point instead of going through Transition directly.
func AttachScan(f models.Family, rec *models.Record, actor, documentRef string, now time.Time) error {
	documentRef = strings.TrimSpace(documentRef)
	if documentRef == "" {
		return dErrors.New(dErrors.CodeValidation, "a scanned document reference is required")
	}
	next, ok := f.Transitions.Next(rec.Status, models.ActionAttachScan)
	if !ok {
		return invalidTransition(f, rec, models.ActionAttachScan)
	}
	rec.ApplyScanAttached(actor, documentRef, now)
	rec.Status = next
	rec.Touch(actor, now)
	return nil
}

func invalidTransition(f models.Family, rec *models.Record, action models.WorkflowAction) error {
	sources := f.Transitions.SourcesFor(action)
	if len(sources) == 0 {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"action %q is not part of the %s workflow", action, f.Name)
	}
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.String()
	}
	return dErrors.Newf(dErrors.CodeInvalidTransition,
		"action %q is not allowed while %s %s is %s (requires %s)",
		action, f.Name, rec.PublicCode, rec.Status, strings.Join(names, " or "))
}

// RequestReprint opens a certificate-reissue request. Only records that
// actually hold a printed certificate can be reprinted, and only one request
// can be in flight at a time.
func RequestReprint(f models.Family, rec *models.Record, actor, reason string, now time.Time) error {
	if !rec.HasCertificate() {
		return dErrors.Newf(dErrors.CodeInvalidTransition,
			"%s %s has no printed certificate to reissue (status %s)", f.Name, rec.PublicCode, rec.Status)
	}
	if rec.ReprintInFlight() {
		return dErrors.Newf(dErrors.CodeConflict,
			"a reprint of %s is already in flight (%s)", rec.PublicCode, rec.ReprintStatus)
	}
	rec.ApplyReprintRequested(actor, strings.TrimSpace(reason), now)
	rec.Touch(actor, now)
	return nil
}

// AcceptReprint moves a pending reissue request to accepted.
func AcceptReprint(f models.Family, rec *models.Record, actor string, now time.Time) error {
	if rec.ReprintStatus != models.ReprintPending {
		return reprintStateError(f, rec, "accept", models.ReprintPending)
	}
	rec.ApplyReprintAccepted(actor, now)
	rec.Touch(actor, now)
	return nil
}

// RejectReprint settles a pending reissue request as refused.
func RejectReprint(f models.Family, rec *models.Record, actor, reason string, now time.Time) error {
	if rec.ReprintStatus != models.ReprintPending {
		return reprintStateError(f, rec, "reject", models.ReprintPending)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "a reprint rejection reason is required")
	}
	rec.ApplyReprintRejected(actor, reason, now)
	rec.Touch(actor, now)
	return nil
}

// CompleteReprint settles an accepted reissue request as done.
func CompleteReprint(f models.Family, rec *models.Record, actor string, now time.Time) error {
	if rec.ReprintStatus != models.ReprintAccepted {
		return reprintStateError(f, rec, "complete", models.ReprintAccepted)
	}
	rec.ApplyReprintCompleted(actor, now)
	rec.Touch(actor, now)
	return nil
}

func reprintStateError(f models.Family, rec *models.Record, verb string, want models.ReprintStatus) error {
	return dErrors.Newf(dErrors.CodeInvalidTransition,
		"cannot %s a reprint of %s %s: reprint status is %s, requires %s",
		verb, f.Name, rec.PublicCode, rec.ReprintStatus, want)
}
