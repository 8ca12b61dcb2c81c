package domain

import "time"

// MessageType tags an outbound communication. The reminder sweeps use the
// presence of a message of a given type as their once-only guard, so a type
// must never be reused across unrelated communications.
type MessageType string

const (
	MessageBorrowerInvitation     MessageType = "BORROWER_INVITATION"
	MessageIntroReminder          MessageType = "BORROWER_PENDING_APPLICATION_REMINDER"
	MessageSubmitReminder         MessageType = "BORROWER_PENDING_SUBMIT_REMINDER"
	MessageSubmissionComplete     MessageType = "SUBMISSION_COMPLETE"
	MessageNewApplicationLender   MessageType = "NEW_APPLICATION_LENDER"
	MessageLenderRequest          MessageType = "LENDER_MESSAGE"
	MessageApprovedApplication    MessageType = "APPROVED_APPLICATION"
	MessageRejectedApplication    MessageType = "REJECTED_APPLICATION"
	MessageContractUploadedBorrower MessageType = "CONTRACT_UPLOAD_CONFIRMATION"
	MessageContractUploadedLender MessageType = "CONTRACT_UPLOAD_CONFIRMATION_TO_LENDER"
	MessageCreditDisbursed        MessageType = "CREDIT_DISBURSED"
	MessageOverdueApplication     MessageType = "OVERDUE_APPLICATION"
	MessageApplicationCopied      MessageType = "APPLICATION_COPIED"
)

// Message is an append-only audit record of one email/notification sent,
// linked to the application that triggered it.
type Message struct {
	ID                int64
	Type              MessageType
	ApplicationID     int64
	LenderID          *int64
	ExternalMessageID string
	Body              string
	CreatedAt         time.Time
}
