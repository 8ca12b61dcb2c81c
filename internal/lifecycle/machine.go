// Package lifecycle implements the application state machine. Transition is a
// pure function from (current status, event) to an outcome carrying the new
// status, the audit action, and the side effects as data; the service executes
// outcomes inside a single unit of work so the machine itself stays free of
// I/O.
package lifecycle

import (
	"time"

	"credere/internal/domain"
	"credere/internal/notify"
	pkgerrors "credere/pkg/errors"
)

type Event string

const (
	EventAccept                     Event = "accept"
	EventDecline                    Event = "decline"
	EventRollbackDecline            Event = "rollback_decline"
	EventSubmit                     Event = "submit"
	EventStart                      Event = "start"
	EventRequestInformation         Event = "request_information"
	EventCompleteInformationRequest Event = "complete_information_request"
	EventApprove                    Event = "approve"
	EventReject                     Event = "reject"
	EventUploadContract             Event = "upload_contract"
	EventComplete                   Event = "complete"
	EventLapse                      Event = "lapse"
)

// Recipient says who a transition effect notifies; the service resolves it to
// a concrete address.
type Recipient string

const (
	RecipientBorrower Recipient = "borrower"
	RecipientLender   Recipient = "lender"
	RecipientAdmin    Recipient = "admin"
)

// Effect is one message-plus-notification pair a transition produces. The
// message row and the dispatch commit atomically with the status change.
type Effect struct {
	Message   domain.MessageType
	Template  notify.Template
	Recipient Recipient
}

// Outcome is the result of a valid transition: new status, audit action, side
// effects, and the timestamp mutation to apply.
type Outcome struct {
	Status  domain.ApplicationStatus
	Action  domain.ApplicationActionType
	Effects []Effect
	stamp   func(app *domain.Application, now time.Time)
}

// Apply mutates the application in place: status plus transition timestamp.
func (o Outcome) Apply(app *domain.Application, now time.Time) {
	app.Status = o.Status
	if o.stamp != nil {
		o.stamp(app, now)
	}
}

type rule struct {
	from    []domain.ApplicationStatus
	outcome Outcome
}

func ts(set func(app *domain.Application, t *time.Time)) func(*domain.Application, time.Time) {
	return func(app *domain.Application, now time.Time) {
		t := now
		set(app, &t)
	}
}

var rules = map[Event]rule{
	EventAccept: {
		from: []domain.ApplicationStatus{domain.StatusPending},
		outcome: Outcome{
			Status: domain.StatusAccepted,
			Action: domain.ActionBorrowerAccepted,
			// Accepted applications no longer expire; they lapse instead.
			stamp: func(app *domain.Application, now time.Time) {
				t := now
				app.AcceptedAt = &t
				app.ExpiredAt = nil
			},
		},
	},
	EventDecline: {
		from: []domain.ApplicationStatus{domain.StatusPending},
		outcome: Outcome{
			Status: domain.StatusDeclined,
			Action: domain.ActionBorrowerDeclined,
			stamp:  ts(func(app *domain.Application, t *time.Time) { app.DeclinedAt = t }),
		},
	},
	EventRollbackDecline: {
		from: []domain.ApplicationStatus{domain.StatusDeclined},
		outcome: Outcome{
			Status: domain.StatusPending,
			Action: domain.ActionBorrowerDeclineRollback,
			stamp: func(app *domain.Application, _ time.Time) {
				app.DeclinedAt = nil
			},
		},
	},
	EventSubmit: {
		from: []domain.ApplicationStatus{domain.StatusAccepted},
		outcome: Outcome{
			Status: domain.StatusSubmitted,
			Action: domain.ActionBorrowerSubmitted,
			Effects: []Effect{
				{Message: domain.MessageSubmissionComplete, Template: notify.TemplateSubmissionComplete, Recipient: RecipientBorrower},
				{Message: domain.MessageNewApplicationLender, Template: notify.TemplateNewApplicationLender, Recipient: RecipientLender},
			},
			stamp: ts(func(app *domain.Application, t *time.Time) { app.SubmittedAt = t }),
		},
	},
	EventStart: {
		from: []domain.ApplicationStatus{domain.StatusSubmitted},
		outcome: Outcome{
			Status: domain.StatusStarted,
			Action: domain.ActionLenderStarted,
			stamp:  ts(func(app *domain.Application, t *time.Time) { app.LenderStartedAt = t }),
		},
	},
	EventRequestInformation: {
		from: []domain.ApplicationStatus{domain.StatusStarted},
		outcome: Outcome{
			Status: domain.StatusInformationRequested,
			Action: domain.ActionLenderRequestInformation,
			Effects: []Effect{
				{Message: domain.MessageLenderRequest, Template: notify.TemplateInformationRequest, Recipient: RecipientBorrower},
			},
			stamp: ts(func(app *domain.Application, t *time.Time) { app.InformationRequestedAt = t }),
		},
	},
	EventCompleteInformationRequest: {
		from: []domain.ApplicationStatus{domain.StatusInformationRequested},
		outcome: Outcome{
			Status: domain.StatusStarted,
			Action: domain.ActionBorrowerDocumentsCompleted,
		},
	},
	EventApprove: {
		from: []domain.ApplicationStatus{domain.StatusStarted},
		outcome: Outcome{
			Status: domain.StatusApproved,
			Action: domain.ActionApprovedApplication,
			Effects: []Effect{
				{Message: domain.MessageApprovedApplication, Template: notify.TemplateApproved, Recipient: RecipientBorrower},
			},
			stamp: ts(func(app *domain.Application, t *time.Time) { app.ApprovedAt = t }),
		},
	},
	EventReject: {
		from: []domain.ApplicationStatus{domain.StatusStarted, domain.StatusContractUploaded},
		outcome: Outcome{
			Status: domain.StatusRejected,
			Action: domain.ActionRejectedApplication,
			Effects: []Effect{
				{Message: domain.MessageRejectedApplication, Template: notify.TemplateRejected, Recipient: RecipientBorrower},
			},
			stamp: ts(func(app *domain.Application, t *time.Time) { app.RejectedAt = t }),
		},
	},
	EventUploadContract: {
		from: []domain.ApplicationStatus{domain.StatusApproved},
		outcome: Outcome{
			Status: domain.StatusContractUploaded,
			Action: domain.ActionBorrowerUploadedContract,
			Effects: []Effect{
				{Message: domain.MessageContractUploadedBorrower, Template: notify.TemplateContractUploadedBorrower, Recipient: RecipientBorrower},
				{Message: domain.MessageContractUploadedLender, Template: notify.TemplateContractUploadedLender, Recipient: RecipientLender},
			},
			stamp: ts(func(app *domain.Application, t *time.Time) { app.ContractUploadedAt = t }),
		},
	},
	EventComplete: {
		from: []domain.ApplicationStatus{domain.StatusContractUploaded},
		outcome: Outcome{
			Status: domain.StatusCompleted,
			Action: domain.ActionLenderCompleted,
			Effects: []Effect{
				{Message: domain.MessageCreditDisbursed, Template: notify.TemplateCreditDisbursed, Recipient: RecipientBorrower},
			},
			stamp: ts(func(app *domain.Application, t *time.Time) { app.CompletedAt = t }),
		},
	},
	EventLapse: {
		from: []domain.ApplicationStatus{domain.StatusPending, domain.StatusAccepted, domain.StatusInformationRequested},
		outcome: Outcome{
			Status: domain.StatusLapsed,
			Action: domain.ActionApplicationLapsed,
			stamp:  ts(func(app *domain.Application, t *time.Time) { app.LapsedAt = t }),
		},
	},
}

// Transition validates the event against the current status. The guard is
// deliberately strict: the persisted status must match a precondition of the
// rule exactly, so stale client state is rejected rather than reinterpreted.
func Transition(current domain.ApplicationStatus, event Event) (Outcome, error) {
	r, ok := rules[event]
	if !ok {
		return Outcome{}, pkgerrors.Newf(pkgerrors.CodeBadRequest, "unknown event %q", event)
	}
	for _, from := range r.from {
		if current == from {
			return r.outcome, nil
		}
	}
	return Outcome{}, pkgerrors.Newf(pkgerrors.CodeConflict,
		"invalid state transition: cannot %s from %s", event, current)
}
