package models

import (
	"strings"
	"time"
)

// Record is one registered entity (a temple, a monk, ...) together with its
// certification workflow state and audit stamps. Records are loaded from and
// written to a store as a whole; the version number makes concurrent writers
// detectable.
//
// PublicCode is immutable after creation and survives soft deletion: deleted
// rows keep their row and code so the code is never reissued.
type Record struct {
	InternalID int64
	PublicCode string
	Family     string

	Name     string
	Address  string
	District string
	Phone    string
	Email    string
	Notes    string

	Status    WorkflowStatus
	IsDeleted bool
	Version   int64

	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time

	ApprovedBy     string
	ApprovedAt     *time.Time
	RejectedBy     string
	RejectedAt     *time.Time
	RejectedReason string

	PrintedBy string
	PrintedAt *time.Time

	ScannedBy          string
	ScannedAt          *time.Time
	ScannedDocumentRef string

	ReprintStatus         ReprintStatus
	ReprintRequestedBy    string
	ReprintRequestedAt    *time.Time
	ReprintReason         string
	ReprintApprovedBy     string
	ReprintApprovedAt     *time.Time
	ReprintRejectedBy     string
	ReprintRejectedAt     *time.Time
	ReprintRejectedReason string
	ReprintCompletedBy    string
	ReprintCompletedAt    *time.Time
}

// RecordInput carries the caller-supplied payload for a new record. Field
// validation beyond the bare minimum is the calling layer's concern.
type RecordInput struct {
	Name     string
	Address  string
	District string
	Phone    string
	Email    string
	Notes    string
}

// RecordPatch updates payload fields on an existing record. Nil fields are
// left untouched. The public code and all workflow state are deliberately
// absent: codes are immutable and status moves only through transitions.
type RecordPatch struct {
	Name     *string
	Address  *string
	District *string
	Phone    *string
	Email    *string
	Notes    *string
}

// IsEmpty reports whether the patch changes nothing.
func (p RecordPatch) IsEmpty() bool {
	return p.Name == nil && p.Address == nil && p.District == nil &&
		p.Phone == nil && p.Email == nil && p.Notes == nil
}

// NewRecord builds a PENDING version-1 record from input. The public code is
// assigned by the allocation loop, not here.
func NewRecord(family string, in RecordInput, actor string, now time.Time) *Record {
	return &Record{
		Family:        family,
		Name:          strings.TrimSpace(in.Name),
		Address:       strings.TrimSpace(in.Address),
		District:      strings.TrimSpace(in.District),
		Phone:         strings.TrimSpace(in.Phone),
		Email:         strings.TrimSpace(in.Email),
		Notes:         strings.TrimSpace(in.Notes),
		Status:        StatusPending,
		Version:       1,
		CreatedBy:     actor,
		CreatedAt:     now,
		UpdatedBy:     actor,
		UpdatedAt:     now,
		ReprintStatus: ReprintNone,
	}
}

// ApplyPatch copies the patch's set fields onto the record. It does not
// touch version or audit stamps; callers bump those via Touch.
func (r *Record) ApplyPatch(p RecordPatch) {
	if p.Name != nil {
		r.Name = strings.TrimSpace(*p.Name)
	}
	if p.Address != nil {
		r.Address = strings.TrimSpace(*p.Address)
	}
	if p.District != nil {
		r.District = strings.TrimSpace(*p.District)
	}
	if p.Phone != nil {
		r.Phone = strings.TrimSpace(*p.Phone)
	}
	if p.Email != nil {
		r.Email = strings.TrimSpace(*p.Email)
	}
	if p.Notes != nil {
		r.Notes = strings.TrimSpace(*p.Notes)
	}
}

// Touch stamps the record as modified by actor and bumps the version.
// Every successful mutation goes through exactly one Touch.
func (r *Record) Touch(actor string, now time.Time) {
	r.UpdatedBy = actor
	r.UpdatedAt = now
	r.Version++
}

// ApplyPrinted stamps the print step.
func (r *Record) ApplyPrinted(actor string, now time.Time) {
	r.PrintedBy = actor
	r.PrintedAt = timePtr(now)
}

// ApplyScanAttached stamps the scanned-document attachment.
func (r *Record) ApplyScanAttached(actor, documentRef string, now time.Time) {
	r.ScannedBy = actor
	r.ScannedAt = timePtr(now)
	r.ScannedDocumentRef = documentRef
}

// ApplyApproved stamps the registrar's approval.
func (r *Record) ApplyApproved(actor string, now time.Time) {
	r.ApprovedBy = actor
	r.ApprovedAt = timePtr(now)
}

// ApplyRejected stamps the refusal. Reason presence is enforced by the
// workflow package before this is called.
func (r *Record) ApplyRejected(actor, reason string, now time.Time) {
	r.RejectedBy = actor
	r.RejectedAt = timePtr(now)
	r.RejectedReason = reason
}

// ApplyReset returns the record to intake: every workflow stamp, including
// the reprint sub-machine, is cleared. Identity, payload, code and audit
// trail stay.
func (r *Record) ApplyReset() {
	r.ApprovedBy = ""
	r.ApprovedAt = nil
	r.RejectedBy = ""
	r.RejectedAt = nil
	r.RejectedReason = ""
	r.PrintedBy = ""
	r.PrintedAt = nil
	r.ScannedBy = ""
	r.ScannedAt = nil
	r.ScannedDocumentRef = ""
	r.clearReprint()
	r.ReprintStatus = ReprintNone
}

func (r *Record) clearReprint() {
	r.ReprintRequestedBy = ""
	r.ReprintRequestedAt = nil
	r.ReprintReason = ""
	r.ReprintApprovedBy = ""
	r.ReprintApprovedAt = nil
	r.ReprintRejectedBy = ""
	r.ReprintRejectedAt = nil
	r.ReprintRejectedReason = ""
	r.ReprintCompletedBy = ""
	r.ReprintCompletedAt = nil
}

// HasCertificate reports whether a printed certificate exists to reissue.
// Reprints are only meaningful from these stages.
func (r *Record) HasCertificate() bool {
	return r.Status == StatusPrinted || r.Status == StatusCompleted
}

// ReprintInFlight reports whether a reissue is currently requested or being
// produced. A second request while one is in flight is a conflict.
func (r *Record) ReprintInFlight() bool {
	return r.ReprintStatus == ReprintPending || r.ReprintStatus == ReprintAccepted
}

// ApplyReprintRequested opens a new reissue request, discarding stamps from
// any previously settled one.
func (r *Record) ApplyReprintRequested(actor, reason string, now time.Time) {
	r.clearReprint()
	r.ReprintStatus = ReprintPending
	r.ReprintRequestedBy = actor
	r.ReprintRequestedAt = timePtr(now)
	r.ReprintReason = reason
}

// ApplyReprintAccepted stamps the desk's acceptance of a pending request.
func (r *Record) ApplyReprintAccepted(actor string, now time.Time) {
	r.ReprintStatus = ReprintAccepted
	r.ReprintApprovedBy = actor
	r.ReprintApprovedAt = timePtr(now)
}

// ApplyReprintRejected settles a pending request as refused.
func (r *Record) ApplyReprintRejected(actor, reason string, now time.Time) {
	r.ReprintStatus = ReprintRejected
	r.ReprintRejectedBy = actor
	r.ReprintRejectedAt = timePtr(now)
	r.ReprintRejectedReason = reason
}

// ApplyReprintCompleted settles an accepted request as reissued.
func (r *Record) ApplyReprintCompleted(actor string, now time.Time) {
	r.ReprintStatus = ReprintCompleted
	r.ReprintCompletedBy = actor
	r.ReprintCompletedAt = timePtr(now)
}

// Clone returns a deep copy. Stores hand out clones so callers can mutate
// freely without racing the store's own state.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.ApprovedAt = clonePtr(r.ApprovedAt)
	cp.RejectedAt = clonePtr(r.RejectedAt)
	cp.PrintedAt = clonePtr(r.PrintedAt)
	cp.ScannedAt = clonePtr(r.ScannedAt)
	cp.ReprintRequestedAt = clonePtr(r.ReprintRequestedAt)
	cp.ReprintApprovedAt = clonePtr(r.ReprintApprovedAt)
	cp.ReprintRejectedAt = clonePtr(r.ReprintRejectedAt)
	cp.ReprintCompletedAt = clonePtr(r.ReprintCompletedAt)
	return &cp
}

func timePtr(t time.Time) *time.Time { return &t }

func clonePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
