package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"credere/internal/domain"
	"credere/internal/identity"
	"credere/internal/notify"
	"credere/internal/store"
	pkgerrors "credere/pkg/errors"
	"credere/pkg/sentinel"
)

// EventSink receives best-effort domain events after a transition commits.
// Implementations must never block the caller; failures are logged, not
// returned.
type EventSink interface {
	Emit(ctx context.Context, event string, payload map[string]any)
}

// Refresher recomputes statistics snapshots. Invoked fire-and-forget after a
// committed transition.
type Refresher interface {
	RefreshAsync(ctx context.Context)
}

// HistoryFetcher pulls a borrower's previous contracts. Triggered in the
// background when a borrower accepts an invitation.
type HistoryFetcher interface {
	FetchPreviousAwardsAsync(ctx context.Context, borrowerID int64)
}

// Service orchestrates lifecycle transitions: guard checks, the state machine,
// and the atomic persistence of status, audit action, message rows and
// notification dispatch. A failed dispatch rolls the whole transition back.
type Service struct {
	uow      store.UnitOfWork
	notifier notify.Notifier
	ident    *identity.Service
	logger   *slog.Logger
	events   EventSink
	stats    Refresher
	history  HistoryFetcher
	now      func() time.Time

	expirationDays int
}

type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventSink attaches a best-effort event publisher.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.events = sink }
}

// WithRefresher attaches the statistics refresher triggered after commits.
func WithRefresher(r Refresher) Option {
	return func(s *Service) { s.stats = r }
}

// WithHistoryFetcher attaches the previous-awards fetch triggered on accept.
func WithHistoryFetcher(h HistoryFetcher) Option {
	return func(s *Service) { s.history = h }
}

// WithExpirationDays sets the borrower-facing window applied to copied
// applications.
func WithExpirationDays(days int) Option {
	return func(s *Service) { s.expirationDays = days }
}

func NewService(uow store.UnitOfWork, notifier notify.Notifier, ident *identity.Service, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		uow:            uow,
		notifier:       notifier,
		ident:          ident,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		expirationDays: 7,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// request carries the variable parts of one transition.
type request struct {
	event  Event
	userID *int64
	data   json.RawMessage
	// mutate runs after the machine's stamp, still inside the transaction,
	// for operation-specific fields (amounts, calculator data).
	mutate func(app *domain.Application)
	// after runs inside the transaction once the application row is updated,
	// for effects the machine cannot express (borrower status changes).
	after func(ctx context.Context, tx store.Tx, app *domain.Application) error
}

// Accept moves a PENDING application to ACCEPTED and clears its expiration.
// The borrower's contract history is fetched in the background.
func (s *Service) Accept(ctx context.Context, token string) (*domain.Application, error) {
	app, err := s.transitionByToken(ctx, token, request{event: EventAccept})
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		s.history.FetchPreviousAwardsAsync(ctx, app.BorrowerID)
	}
	return app, nil
}

// DeclineParams captures the borrower's decline feedback. DeclineAll opts the
// borrower out of every future invitation.
type DeclineParams struct {
	DeclineAll   bool
	DeclinedData json.RawMessage
}

// Decline moves a PENDING application to DECLINED. With DeclineAll the
// borrower is marked DECLINED_ALL_OPPORTUNITIES in the same transaction.
func (s *Service) Decline(ctx context.Context, token string, p DeclineParams) (*domain.Application, error) {
	return s.transitionByToken(ctx, token, request{
		event: EventDecline,
		data:  p.DeclinedData,
		mutate: func(app *domain.Application) {
			app.DeclinedData = p.DeclinedData
		},
		after: func(ctx context.Context, tx store.Tx, app *domain.Application) error {
			if !p.DeclineAll {
				return nil
			}
			b, err := tx.Borrowers().GetByID(ctx, app.BorrowerID)
			if err != nil {
				return translate(err, "borrower")
			}
			b.Status = domain.BorrowerDeclinedOpportunities
			b.DeclinedAt = app.DeclinedAt
			return tx.Borrowers().Update(ctx, b)
		},
	})
}

// RollbackDecline returns a DECLINED application to PENDING and reactivates
// the borrower if the decline had opted them out. Once the retention sweep
// archived the application the rollback is refused: the scrubbed record can
// no longer re-enter the active lifecycle.
func (s *Service) RollbackDecline(ctx context.Context, token string) (*domain.Application, error) {
	return s.transitionByToken(ctx, token, request{
		event: EventRollbackDecline,
		mutate: func(app *domain.Application) {
			app.DeclinedData = nil
		},
		after: func(ctx context.Context, tx store.Tx, app *domain.Application) error {
			b, err := tx.Borrowers().GetByID(ctx, app.BorrowerID)
			if err != nil {
				return translate(err, "borrower")
			}
			if b.Status != domain.BorrowerDeclinedOpportunities {
				return nil
			}
			b.Status = domain.BorrowerActive
			b.DeclinedAt = nil
			return tx.Borrowers().Update(ctx, b)
		},
	})
}

// SubmitParams carries the borrower's credit selection.
type SubmitParams struct {
	LenderID        int64
	CreditProductID *int64
	AmountRequested decimal.Decimal
	CalculatorData  json.RawMessage
}

// Submit moves an ACCEPTED application to SUBMITTED, records the selected
// lender and amount, and notifies both the borrower and the lender.
func (s *Service) Submit(ctx context.Context, token string, p SubmitParams) (*domain.Application, error) {
	if p.LenderID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeBadRequest, "a lender must be selected before submitting")
	}
	return s.transitionByToken(ctx, token, request{
		event: EventSubmit,
		mutate: func(app *domain.Application) {
			lid := p.LenderID
			app.LenderID = &lid
			app.CreditProductID = p.CreditProductID
			amt := p.AmountRequested
			app.AmountRequested = &amt
			if p.CalculatorData != nil {
				app.CalculatorData = p.CalculatorData
			}
		},
	})
}

// Start moves a SUBMITTED application to STARTED on behalf of a lender user.
func (s *Service) Start(ctx context.Context, applicationID int64, userID int64) (*domain.Application, error) {
	return s.transitionByID(ctx, applicationID, request{event: EventStart, userID: &userID})
}

// RequestInformation moves a STARTED application to INFORMATION_REQUESTED and
// emails the borrower the lender's message.
func (s *Service) RequestInformation(ctx context.Context, applicationID int64, userID int64, message string) (*domain.Application, error) {
	data, _ := json.Marshal(map[string]string{"message": message})
	return s.transitionByID(ctx, applicationID, request{
		event:  EventRequestInformation,
		userID: &userID,
		data:   data,
	})
}

// CompleteInformationRequest returns an INFORMATION_REQUESTED application to
// STARTED after the borrower provided the requested documents. The audit
// action it records is the borrower half of the SLA pairing.
func (s *Service) CompleteInformationRequest(ctx context.Context, token string) (*domain.Application, error) {
	return s.transitionByToken(ctx, token, request{
		event: EventCompleteInformationRequest,
		mutate: func(app *domain.Application) {
			app.PendingDocuments = false
		},
	})
}

// Approve moves a STARTED application to APPROVED.
func (s *Service) Approve(ctx context.Context, applicationID int64, userID int64, data json.RawMessage) (*domain.Application, error) {
	return s.transitionByID(ctx, applicationID, request{event: EventApprove, userID: &userID, data: data})
}

// Reject moves a STARTED or CONTRACT_UPLOADED application to REJECTED.
func (s *Service) Reject(ctx context.Context, applicationID int64, userID int64, data json.RawMessage) (*domain.Application, error) {
	return s.transitionByID(ctx, applicationID, request{event: EventReject, userID: &userID, data: data})
}

// UploadContract moves an APPROVED application to CONTRACT_UPLOADED and
// records the contract amount the borrower submitted.
func (s *Service) UploadContract(ctx context.Context, token string, contractAmount decimal.Decimal) (*domain.Application, error) {
	return s.transitionByToken(ctx, token, request{
		event: EventUploadContract,
		mutate: func(app *domain.Application) {
			amt := contractAmount
			app.ContractAmountSubmitted = &amt
		},
	})
}

// Complete moves a CONTRACT_UPLOADED application to COMPLETED with the final
// disbursed amount.
func (s *Service) Complete(ctx context.Context, applicationID int64, userID int64, disbursed decimal.Decimal) (*domain.Application, error) {
	return s.transitionByID(ctx, applicationID, request{
		event:  EventComplete,
		userID: &userID,
		mutate: func(app *domain.Application) {
			amt := disbursed
			app.DisbursedFinalAmount = &amt
		},
	})
}

// Lapse moves an inactive application to LAPSED. Used by the lapsing sweep.
func (s *Service) Lapse(ctx context.Context, applicationID int64) (*domain.Application, error) {
	return s.transitionByID(ctx, applicationID, request{event: EventLapse})
}

// GetByToken resolves a borrower-facing access token to its application.
// Expired and archived applications resolve but are refused, so callers get a
// precise error instead of a generic not-found.
func (s *Service) GetByToken(ctx context.Context, token string) (*domain.Application, error) {
	app, err := s.uow.Applications().GetByToken(ctx, token)
	if err != nil {
		return nil, translate(err, "application")
	}
	return app, nil
}

// FindAlternativeCredit copies a REJECTED application into a fresh PENDING one
// so the borrower can approach a different lender. The copy reuses the same
// award and borrower but derives a new dedup key and access token, leaving the
// first-generation key untouched. Copying twice is refused.
func (s *Service) FindAlternativeCredit(ctx context.Context, token string) (*domain.Application, error) {
	var copied *domain.Application
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		app, err := tx.Applications().GetByToken(ctx, token)
		if err != nil {
			return translate(err, "application")
		}
		if app.Archived() {
			return pkgerrors.New(pkgerrors.CodeConflict, "application has been archived")
		}
		if app.Status != domain.StatusRejected {
			return pkgerrors.Newf(pkgerrors.CodeConflict,
				"alternative credit is only available for rejected applications, not %s", app.Status)
		}
		already, err := tx.Actions().ExistsByType(ctx, app.ID, domain.ActionCopiedApplication)
		if err != nil {
			return err
		}
		if already {
			return pkgerrors.New(pkgerrors.CodeConflict, "application was already copied")
		}

		now := s.now()
		dedup := s.ident.CopyDedupKey(app.DedupKey)
		expires := now.Add(time.Duration(s.expirationDays) * 24 * time.Hour)
		copied = &domain.Application{
			AccessToken:  identity.OpaqueToken(dedup),
			DedupKey:     dedup,
			Status:       domain.StatusPending,
			AwardID:      app.AwardID,
			BorrowerID:   app.BorrowerID,
			PrimaryEmail: app.PrimaryEmail,
			Currency:     app.Currency,
			ExpiredAt:    &expires,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Applications().Create(ctx, copied); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return pkgerrors.New(pkgerrors.CodeConflict, "application was already copied")
			}
			return err
		}

		origData, _ := json.Marshal(map[string]int64{"copied_to": copied.ID})
		copyData, _ := json.Marshal(map[string]int64{"copied_from": app.ID})
		if err := tx.Actions().Create(ctx, &domain.ApplicationAction{
			Type: domain.ActionCopiedApplication, ApplicationID: app.ID, Data: origData, CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.Actions().Create(ctx, &domain.ApplicationAction{
			Type: domain.ActionApplicationCopiedFrom, ApplicationID: copied.ID, Data: copyData, CreatedAt: now,
		}); err != nil {
			return err
		}

		return s.dispatch(ctx, tx, copied, Effect{
			Message:   domain.MessageApplicationCopied,
			Template:  notify.TemplateAlternativeCredit,
			Recipient: RecipientBorrower,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, copied, "application.copied")
	return copied, nil
}

func (s *Service) transitionByToken(ctx context.Context, token string, req request) (*domain.Application, error) {
	return s.transition(ctx, req, func(ctx context.Context, tx store.Tx) (*domain.Application, error) {
		app, err := tx.Applications().GetByToken(ctx, token)
		if err != nil {
			return nil, translate(err, "application")
		}
		if app.Expired(s.now()) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "application has expired")
		}
		return app, nil
	})
}

func (s *Service) transitionByID(ctx context.Context, id int64, req request) (*domain.Application, error) {
	return s.transition(ctx, req, func(ctx context.Context, tx store.Tx) (*domain.Application, error) {
		app, err := tx.Applications().GetByID(ctx, id)
		if err != nil {
			return nil, translate(err, "application")
		}
		return app, nil
	})
}

// transition is the single execution path for every lifecycle event. The
// application is re-read inside the transaction so the state check and the
// update are atomic; any failure, including notification dispatch, rolls the
// whole unit of work back.
func (s *Service) transition(ctx context.Context, req request, load func(ctx context.Context, tx store.Tx) (*domain.Application, error)) (*domain.Application, error) {
	var result *domain.Application
	err := s.uow.RunInTx(ctx, func(tx store.Tx) error {
		app, err := load(ctx, tx)
		if err != nil {
			return err
		}
		if app.Archived() {
			return pkgerrors.New(pkgerrors.CodeConflict, "application has been archived")
		}

		outcome, err := Transition(app.Status, req.event)
		if err != nil {
			return err
		}

		now := s.now()
		outcome.Apply(app, now)
		if req.mutate != nil {
			req.mutate(app)
		}
		app.UpdatedAt = now
		if err := tx.Applications().Update(ctx, app); err != nil {
			return err
		}

		if err := tx.Actions().Create(ctx, &domain.ApplicationAction{
			Type:          outcome.Action,
			ApplicationID: app.ID,
			UserID:        req.userID,
			Data:          req.data,
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		for _, effect := range outcome.Effects {
			if err := s.dispatch(ctx, tx, app, effect, now); err != nil {
				return err
			}
		}

		if req.after != nil {
			if err := req.after(ctx, tx, app); err != nil {
				return err
			}
		}
		result = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, result, "application."+string(req.event))
	return result, nil
}

// dispatch records the message row and sends the notification inside the
// transaction. A send failure aborts the transition.
func (s *Service) dispatch(ctx context.Context, tx store.Tx, app *domain.Application, effect Effect, now time.Time) error {
	recipient, lenderID, err := s.resolveRecipient(ctx, tx, app, effect.Recipient)
	if err != nil {
		return err
	}
	externalID, err := s.notifier.Send(ctx, effect.Template, recipient, map[string]string{
		"application_token": app.AccessToken,
	})
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "notification dispatch failed")
	}
	return tx.Messages().Create(ctx, &domain.Message{
		Type:              effect.Message,
		ApplicationID:     app.ID,
		LenderID:          lenderID,
		ExternalMessageID: externalID,
		CreatedAt:         now,
	})
}

func (s *Service) resolveRecipient(ctx context.Context, tx store.Tx, app *domain.Application, r Recipient) (string, *int64, error) {
	switch r {
	case RecipientBorrower:
		if app.PrimaryEmail == "" {
			return "", nil, pkgerrors.New(pkgerrors.CodeInternal, "application has no primary email")
		}
		return app.PrimaryEmail, nil, nil
	case RecipientLender:
		if app.LenderID == nil {
			return "", nil, pkgerrors.New(pkgerrors.CodeInternal, "application has no lender assigned")
		}
		lender, err := tx.Lenders().GetByID(ctx, *app.LenderID)
		if err != nil {
			return "", nil, translate(err, "lender")
		}
		return lender.EmailGroup, app.LenderID, nil
	default:
		return "", nil, pkgerrors.Newf(pkgerrors.CodeInternal, "unknown recipient %q", r)
	}
}

// afterCommit fires the best-effort side channels. Neither can fail the
// already-committed transition.
func (s *Service) afterCommit(ctx context.Context, app *domain.Application, event string) {
	if app == nil {
		return
	}
	s.logger.InfoContext(ctx, "application transitioned",
		"application_id", app.ID,
		"status", string(app.Status),
		"event", event,
	)
	if s.events != nil {
		s.events.Emit(ctx, event, map[string]any{
			"application_id": app.ID,
			"status":         string(app.Status),
		})
	}
	if s.stats != nil {
		s.stats.RefreshAsync(ctx)
	}
}

func translate(err error, entity string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return pkgerrors.Wrap(err, pkgerrors.CodeNotFound, entity+" not found")
	}
	return err
}
