// Package notify defines the outbound notification contract. Template
// rendering and delivery transport are external collaborators; the engine
// only depends on a synchronous Send whose failure can abort the enclosing
// unit of work.
package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
)

// Template names a notification kind. The collaborator maps it to an email
// template; the engine never sees the rendered body.
type Template string

const (
	TemplateInvitation               Template = "invitation"
	TemplateIntroReminder            Template = "intro_reminder"
	TemplateSubmitReminder           Template = "submit_reminder"
	TemplateSubmissionComplete       Template = "submission_complete"
	TemplateNewApplicationLender     Template = "new_application_lender"
	TemplateInformationRequest       Template = "information_request"
	TemplateApproved                 Template = "approved"
	TemplateRejected                 Template = "rejected"
	TemplateContractUploadedBorrower Template = "contract_uploaded_borrower"
	TemplateContractUploadedLender   Template = "contract_uploaded_lender"
	TemplateCreditDisbursed          Template = "credit_disbursed"
	TemplateOverdueToAdmin           Template = "overdue_admin"
	TemplateOverdueToLender          Template = "overdue_lender"
	TemplateAlternativeCredit        Template = "alternative_credit"
)

// Notifier sends one notification and returns the provider's message id.
// Implementations must be bounded in time: a hung dispatch would hold a
// database transaction open.
type Notifier interface {
	Send(ctx context.Context, template Template, recipient string, vars map[string]string) (string, error)
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used by local runs and as the default when no sender is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(ctx context.Context, template Template, recipient string, vars map[string]string) (string, error) {
	n.Logger.InfoContext(ctx, "notification (not delivered)",
		"template", string(template),
		"recipient", recipient,
	)
	return "log-" + string(template), nil
}

// Recorder captures sent notifications for tests. FailWith, when set, makes
// every Send fail, which is how tests exercise the all-or-nothing rule.
type Recorder struct {
	mu       sync.Mutex
	Sent     []Sent
	FailWith error
}

type Sent struct {
	Template  Template
	Recipient string
	Vars      map[string]string
}

func (r *Recorder) Send(_ context.Context, template Template, recipient string, vars map[string]string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return "", r.FailWith
	}
	r.Sent = append(r.Sent, Sent{Template: template, Recipient: recipient, Vars: vars})
	return "msg-" + strconv.Itoa(len(r.Sent)), nil
}

// CountByTemplate reports how many notifications of one template were sent.
func (r *Recorder) CountByTemplate(t Template) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.Sent {
		if s.Template == t {
			n++
		}
	}
	return n
}
