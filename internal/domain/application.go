package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus is the lifecycle state of a credit application. Mutations
// go exclusively through the lifecycle state machine.
type ApplicationStatus string

const (
	StatusPending              ApplicationStatus = "PENDING"
	StatusAccepted             ApplicationStatus = "ACCEPTED"
	StatusDeclined             ApplicationStatus = "DECLINED"
	StatusSubmitted            ApplicationStatus = "SUBMITTED"
	StatusStarted              ApplicationStatus = "STARTED"
	StatusInformationRequested ApplicationStatus = "INFORMATION_REQUESTED"
	StatusApproved             ApplicationStatus = "APPROVED"
	StatusContractUploaded     ApplicationStatus = "CONTRACT_UPLOADED"
	StatusCompleted            ApplicationStatus = "COMPLETED"
	StatusRejected             ApplicationStatus = "REJECTED"
	StatusLapsed               ApplicationStatus = "LAPSED"
)

// Application is the central entity: one borrower invited for one award.
//
// DedupKey is a deterministic hash of (legal identifier + source contract id)
// and is unique, which is the single invariant preventing double-invitation of
// the same borrower for the same award. AccessToken is derived from DedupKey
// and used for unauthenticated borrower-facing links.
type Application struct {
	ID              int64
	AccessToken     string
	DedupKey        string
	Status          ApplicationStatus
	AwardID         int64
	BorrowerID      int64
	LenderID        *int64
	CreditProductID *int64
	PrimaryEmail    string

	AmountRequested         *decimal.Decimal
	ContractAmountSubmitted *decimal.Decimal
	DisbursedFinalAmount    *decimal.Decimal
	Currency                string

	CalculatorData   json.RawMessage
	DeclinedData     json.RawMessage
	PendingDocuments bool

	ExpiredAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	// One nullable timestamp per transition, recording when it occurred.
	AcceptedAt             *time.Time
	DeclinedAt             *time.Time
	SubmittedAt            *time.Time
	LenderStartedAt        *time.Time
	InformationRequestedAt *time.Time
	ApprovedAt             *time.Time
	RejectedAt             *time.Time
	ContractUploadedAt     *time.Time
	CompletedAt            *time.Time
	LapsedAt               *time.Time
	OverduedAt             *time.Time
	ArchivedAt             *time.Time
}

// Archived reports whether the retention sweep already scrubbed this
// application. Archived applications are terminal and never transition again.
func (a *Application) Archived() bool { return a.ArchivedAt != nil }

// Expired reports whether the borrower-facing access window has passed.
// Acceptance clears ExpiredAt; accepted applications lapse instead of expire.
func (a *Application) Expired(now time.Time) bool {
	return a.ExpiredAt != nil && a.ExpiredAt.Before(now)
}

// StatusEnteredAt returns the timestamp at which the application entered its
// current status, for the statuses the lapsing policy watches.
func (a *Application) StatusEnteredAt() time.Time {
	switch a.Status {
	case StatusAccepted:
		if a.AcceptedAt != nil {
			return *a.AcceptedAt
		}
	case StatusInformationRequested:
		if a.InformationRequestedAt != nil {
			return *a.InformationRequestedAt
		}
	}
	return a.CreatedAt
}

// TerminalAt returns the timestamp the retention policy measures from, per
// terminal status. Zero time if the application is not in a terminal status.
func (a *Application) TerminalAt() time.Time {
	var t *time.Time
	switch a.Status {
	case StatusDeclined:
		t = a.DeclinedAt
	case StatusRejected:
		t = a.RejectedAt
	case StatusCompleted:
		t = a.CompletedAt
	case StatusLapsed:
		t = a.LapsedAt
	}
	if t == nil {
		return time.Time{}
	}
	return *t
}
