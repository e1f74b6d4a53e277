package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sasana/internal/registry/models"
	"sasana/internal/registry/service"
	"sasana/internal/registry/store/memory"
	dErrors "sasana/pkg/domainerrors"
	"sasana/pkg/platform/audit"
)

// advanceToPendApproval walks a fresh temple record to PEND-APPROVAL.
func advanceToPendApproval(t *testing.T, svc *service.Service) *models.Record {
	t.Helper()
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")
	_, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionMarkPrinted, "printer-1", "")
	require.NoError(t, err)
	rec, err = svc.AttachScannedDocument(testCtx(), "temple", rec.InternalID, "scan/temple/1.pdf", "clerk-1")
	require.NoError(t, err)
	return rec
}

func TestTransitionApproveFlow(t *testing.T) {
	st := memory.New()
	svc := newService(st)

	rec := advanceToPendApproval(t, svc)
	assert.Equal(t, models.StatusPendApproval, rec.Status)
	assert.Equal(t, int64(3), rec.Version)

	rec, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionApprove, "registrar-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "registrar-1", rec.ApprovedBy)
	require.NotNil(t, rec.ApprovedAt)
	assert.Equal(t, testNow, *rec.ApprovedAt)
	assert.Equal(t, int64(4), rec.Version)

	// Approving a completed record is illegal and changes nothing.
	_, err = svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionApprove, "registrar-1", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	stored, err := svc.Get(testCtx(), "temple", rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, int64(4), stored.Version)
}

func TestTransitionPersistsNothingOnFailure(t *testing.T) {
	st := memory.New()
	svc := newService(st)

	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")
	eventsBefore := len(st.Events())

	_, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionApprove, "registrar-1", "")
	require.Error(t, err)

	stored, err := svc.Get(testCtx(), "temple", rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
	// A refused transition leaves no audit trace.
	assert.Len(t, st.Events(), eventsBefore)
}

func TestTransitionRejectRequiresReason(t *testing.T) {
	st := memory.New()
	svc := newService(st)
	rec := advanceToPendApproval(t, svc)

	_, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionReject, "registrar-1", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	stored, err := svc.Get(testCtx(), "temple", rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendApproval, stored.Status)
	assert.Equal(t, rec.Version, stored.Version)

	rejected, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionReject, "registrar-1", "seal missing")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "seal missing", rejected.RejectedReason)
}

func TestTransitionRefusesAttachScanAction(t *testing.T) {
	svc := newService(memory.New())
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	_, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionAttachScan, "clerk-1", "")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.ErrorContains(t, err, "AttachScannedDocument")
}

func TestAttachScannedDocument(t *testing.T) {
	st := memory.New()
	svc := newService(st)

	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	// Scan before print is out of order in a print-then-approve family.
	_, err := svc.AttachScannedDocument(testCtx(), "temple", rec.InternalID, "scan/1.pdf", "clerk-1")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))

	_, err = svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionMarkPrinted, "printer-1", "")
	require.NoError(t, err)

	rec, err = svc.AttachScannedDocument(testCtx(), "temple", rec.InternalID, "scan/1.pdf", "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendApproval, rec.Status)
	assert.Equal(t, "scan/1.pdf", rec.ScannedDocumentRef)
	assert.Equal(t, "clerk-1", rec.ScannedBy)

	events := st.Events()
	last := events[len(events)-1]
	assert.Equal(t, audit.ActionScanAttached, last.Action)
	assert.Equal(t, "scan/1.pdf", last.Details["document_ref"])
}

func TestApproveThenPrintFamilyFlow(t *testing.T) {
	svc := newService(memory.New())

	rec := mustCreate(t, svc, "monk", "Ven. Dhammananda")
	assert.Equal(t, "BHK0000001", rec.PublicCode)

	rec, err := svc.AttachScannedDocument(testCtx(), "monk", rec.InternalID, "scan/monk/1.pdf", "clerk-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendApproval, rec.Status)

	rec, err = svc.Transition(testCtx(), "monk", rec.InternalID, models.ActionApprove, "registrar-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, rec.Status)

	rec, err = svc.Transition(testCtx(), "monk", rec.InternalID, models.ActionMarkPrinted, "printer-1", "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "printer-1", rec.PrintedBy)
	require.NotNil(t, rec.PrintedAt)
}

func TestTransitionAuditTrail(t *testing.T) {
	st := memory.New()
	svc := newService(st)

	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")
	_, err := svc.Transition(testCtx(), "temple", rec.InternalID, models.ActionMarkPrinted, "printer-1", "")
	require.NoError(t, err)

	events := st.Events()
	require.Len(t, events, 2)
	moved := events[1]
	assert.Equal(t, audit.ActionWorkflowMoved, moved.Action)
	assert.Equal(t, "printer-1", moved.ActorID)
	assert.Equal(t, "mark_printed", moved.Details["action"])
	assert.Equal(t, "PENDING", moved.Details["from"])
	assert.Equal(t, "PRINTED", moved.Details["to"])
	assert.NotEmpty(t, moved.ID)
	assert.Equal(t, testNow, moved.OccurredAt)
}

func TestUpdatePatchesPayload(t *testing.T) {
	svc := newService(memory.New())
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	district := "Colombo"
	updated, err := svc.Update(testCtx(), "temple", rec.InternalID,
		models.RecordPatch{District: &district}, "officer-2", rec.Version)
	require.NoError(t, err)
	assert.Equal(t, "Colombo", updated.District)
	assert.Equal(t, rec.Version+1, updated.Version)
	assert.Equal(t, "officer-2", updated.UpdatedBy)
	// Identity is untouched.
	assert.Equal(t, rec.PublicCode, updated.PublicCode)
	assert.Equal(t, models.StatusPending, updated.Status)
}

func TestUpdateValidation(t *testing.T) {
	svc := newService(memory.New())
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	_, err := svc.Update(testCtx(), "temple", rec.InternalID, models.RecordPatch{}, "officer-2", rec.Version)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	empty := "  "
	_, err = svc.Update(testCtx(), "temple", rec.InternalID, models.RecordPatch{Name: &empty}, "officer-2", rec.Version)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	name := "New Name"
	_, err = svc.Update(testCtx(), "temple", rec.InternalID, models.RecordPatch{Name: &name}, "officer-2", 0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestUpdateStaleVersionLosesCleanly(t *testing.T) {
	svc := newService(memory.New())
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	first := "Colombo"
	_, err := svc.Update(testCtx(), "temple", rec.InternalID,
		models.RecordPatch{District: &first}, "officer-2", rec.Version)
	require.NoError(t, err)

	// A second writer still holding version 1 is refused without effect.
	second := "Kandy"
	_, err = svc.Update(testCtx(), "temple", rec.InternalID,
		models.RecordPatch{District: &second}, "officer-3", rec.Version)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeStaleVersion))

	stored, err := svc.Get(testCtx(), "temple", rec.InternalID)
	require.NoError(t, err)
	assert.Equal(t, "Colombo", stored.District)
	assert.Equal(t, rec.Version+1, stored.Version)
}

func TestGetByCode(t *testing.T) {
	svc := newService(memory.New())
	rec := mustCreate(t, svc, "temple", "Sri Vajiraramaya")

	found, err := svc.GetByCode(testCtx(), "temple", rec.PublicCode)
	require.NoError(t, err)
	assert.Equal(t, rec.InternalID, found.InternalID)

	_, err = svc.GetByCode(testCtx(), "temple", "TRN9999999")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = svc.GetByCode(testCtx(), "temple", "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
