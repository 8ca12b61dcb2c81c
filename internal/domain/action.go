package domain

import (
	"encoding/json"
	"time"
)

// ApplicationActionType classifies audit actions. The SLA waiting-days
// computation pairs LENDER_REQUEST_INFORMATION actions against
// BORROWER_DOCUMENTS_COMPLETED actions, oldest to oldest.
type ApplicationActionType string

const (
	ActionBorrowerAccepted          ApplicationActionType = "BORROWER_ACCEPTED"
	ActionBorrowerDeclined          ApplicationActionType = "BORROWER_DECLINED"
	ActionBorrowerDeclineRollback   ApplicationActionType = "BORROWER_DECLINE_ROLLBACK"
	ActionBorrowerSubmitted         ApplicationActionType = "BORROWER_SUBMITTED"
	ActionLenderStarted             ApplicationActionType = "LENDER_START_APPLICATION"
	ActionLenderRequestInformation  ApplicationActionType = "LENDER_REQUEST_INFORMATION"
	ActionBorrowerDocumentsCompleted ApplicationActionType = "BORROWER_DOCUMENTS_COMPLETED"
	ActionApprovedApplication       ApplicationActionType = "APPROVED_APPLICATION"
	ActionRejectedApplication       ApplicationActionType = "REJECTED_APPLICATION"
	ActionBorrowerUploadedContract  ApplicationActionType = "BORROWER_UPLOADED_CONTRACT"
	ActionLenderCompleted           ApplicationActionType = "LENDER_COMPLETE_APPLICATION"
	ActionApplicationLapsed         ApplicationActionType = "APPLICATION_LAPSED"
	ActionApplicationArchived       ApplicationActionType = "APPLICATION_ARCHIVED"
	// ActionCopiedApplication on the original and ActionApplicationCopiedFrom
	// on the copy together form the idempotency guard for the
	// find-alternative-credit operation.
	ActionCopiedApplication       ApplicationActionType = "COPIED_APPLICATION"
	ActionApplicationCopiedFrom   ApplicationActionType = "APPLICATION_COPIED_FROM"
	ActionAwardUpdate             ApplicationActionType = "AWARD_UPDATE"
	ActionBorrowerUpdate          ApplicationActionType = "BORROWER_UPDATE"
)

// ApplicationAction is an append-only audit record of a transition or
// administrative action: who, what, opaque payload, when. Never mutated.
type ApplicationAction struct {
	ID            int64
	Type          ApplicationActionType
	ApplicationID int64
	UserID        *int64
	Data          json.RawMessage
	CreatedAt     time.Time
}
