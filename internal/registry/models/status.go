package models

import "fmt"

// WorkflowStatus is the document-processing stage of a record. It is mutated
// only through the workflow package; stores persist it verbatim.
type WorkflowStatus string

const (
	// StatusPending is the intake stage every record is created in.
	StatusPending WorkflowStatus = "PENDING"
	// StatusPrinted means the certificate has been printed and awaits the
	// signed scan.
	StatusPrinted WorkflowStatus = "PRINTED"
	// StatusPendApproval means the scanned document is attached and the
	// record awaits the registrar's decision.
	StatusPendApproval WorkflowStatus = "PEND-APPROVAL"
	// StatusApproved exists only in approve-then-print families: the
	// registrar has approved and the certificate is yet to be printed.
	StatusApproved WorkflowStatus = "APPROVED"
	// StatusCompleted is the certified terminal stage.
	StatusCompleted WorkflowStatus = "COMPLETED"
	// StatusRejected is the refused branch; only reset_to_pending leaves it.
	StatusRejected WorkflowStatus = "REJECTED"
)

// workflowStatuses is the closed set of valid statuses.
var workflowStatuses = map[WorkflowStatus]struct{}{
	StatusPending:      {},
	StatusPrinted:      {},
	StatusPendApproval: {},
	StatusApproved:     {},
	StatusCompleted:    {},
	StatusRejected:     {},
}

func (s WorkflowStatus) IsValid() bool {
	_, ok := workflowStatuses[s]
	return ok
}

func (s WorkflowStatus) String() string { return string(s) }

// ReprintStatus tracks the certificate-reissue sub-machine. It is independent
// of WorkflowStatus and only meaningful once a certificate exists.
type ReprintStatus string

const (
	ReprintNone      ReprintStatus = "NONE"
	ReprintPending   ReprintStatus = "REPRINT_PENDING"
	ReprintAccepted  ReprintStatus = "REPRINT_ACCEPTED"
	ReprintRejected  ReprintStatus = "REPRINT_REJECTED"
	ReprintCompleted ReprintStatus = "REPRINT_COMPLETED"
)

var reprintStatuses = map[ReprintStatus]struct{}{
	ReprintNone:      {},
	ReprintPending:   {},
	ReprintAccepted:  {},
	ReprintRejected:  {},
	ReprintCompleted: {},
}

func (s ReprintStatus) IsValid() bool {
	_, ok := reprintStatuses[s]
	return ok
}

func (s ReprintStatus) String() string { return string(s) }

// WorkflowAction names a caller-requestable operation on the main workflow.
type WorkflowAction string

const (
	ActionMarkPrinted    WorkflowAction = "mark_printed"
	ActionApprove        WorkflowAction = "approve"
	ActionReject         WorkflowAction = "reject"
	ActionResetToPending WorkflowAction = "reset_to_pending"
	// ActionAttachScan is the transition taken when a scanned document is
	// attached. It is a side effect of attachment, not a standalone action:
	// Service.Transition refuses it and AttachScannedDocument drives it.
	ActionAttachScan WorkflowAction = "attach_scan"
)

var workflowActions = map[WorkflowAction]struct{}{
	ActionMarkPrinted:    {},
	ActionApprove:        {},
	ActionReject:         {},
	ActionResetToPending: {},
	ActionAttachScan:     {},
}

func (a WorkflowAction) IsValid() bool {
	_, ok := workflowActions[a]
	return ok
}

func (a WorkflowAction) String() string { return string(a) }

// ParseWorkflowAction validates an action name coming from outside the
// library (CLI flags, queue payloads).
func ParseWorkflowAction(s string) (WorkflowAction, error) {
	a := WorkflowAction(s)
	if !a.IsValid() {
		return "", fmt.Errorf("unknown workflow action: %s", s)
	}
	return a, nil
}
