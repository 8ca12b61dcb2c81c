// Package store defines the persistence contracts the lifecycle engine
// requires: atomic multi-row units of work, uniqueness on the borrower
// identifier and the application dedup key, and the point/range queries the
// policy sweeps run. Implementations live in memory/ and postgres/.
package store

import (
	"context"
	"time"

	"credere/internal/domain"
)

// Tx is the view of all stores inside one unit of work. Everything done
// through a Tx commits or rolls back together.
type Tx interface {
	Applications() ApplicationStore
	Borrowers() BorrowerStore
	Awards() AwardStore
	Lenders() LenderStore
	Messages() MessageStore
	Actions() ActionStore
	Documents() DocumentStore
	Statistics() StatisticStore
}

// UnitOfWork runs fn inside a single transaction. If fn returns an error the
// whole unit of work rolls back; partial application is never observable.
type UnitOfWork interface {
	Tx
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

type ApplicationStore interface {
	// Create inserts a new application. Returns sentinel.ErrDuplicate
	// (possibly wrapped) if the dedup key already exists.
	Create(ctx context.Context, app *domain.Application) error
	GetByID(ctx context.Context, id int64) (*domain.Application, error)
	GetByToken(ctx context.Context, token string) (*domain.Application, error)
	GetByDedupKey(ctx context.Context, key string) (*domain.Application, error)
	Update(ctx context.Context, app *domain.Application) error

	// PendingIntroReminder: PENDING, not expired, expiring within the window,
	// no prior intro-reminder message, borrower ACTIVE.
	PendingIntroReminder(ctx context.Context, now time.Time, window time.Duration) ([]domain.Application, error)
	// PendingSubmitReminder: ACCEPTED, not expired, expiring within the
	// window, no prior submit-reminder message.
	PendingSubmitReminder(ctx context.Context, now time.Time, window time.Duration) ([]domain.Application, error)
	// Lapsable: unarchived PENDING/ACCEPTED/INFORMATION_REQUESTED whose
	// status-entry timestamp is older than the threshold.
	Lapsable(ctx context.Context, now time.Time, threshold time.Duration) ([]domain.Application, error)
	// Archivable: unarchived DECLINED/REJECTED/COMPLETED/LAPSED whose
	// terminal timestamp is older than the retention period.
	Archivable(ctx context.Context, now time.Time, retention time.Duration) ([]domain.Application, error)
	// WithStatuses lists applications in any of the given statuses,
	// unarchived only. Used by the SLA overdue sweep.
	WithStatuses(ctx context.Context, statuses ...domain.ApplicationStatus) ([]domain.Application, error)
	// CountActiveByBorrower counts unarchived applications referencing the
	// borrower, excluding excludeID. Gates borrower PII scrubbing.
	CountActiveByBorrower(ctx context.Context, borrowerID, excludeID int64) (int, error)
}

type BorrowerStore interface {
	// Create returns sentinel.ErrDuplicate if the identifier already exists.
	Create(ctx context.Context, b *domain.Borrower) error
	GetByID(ctx context.Context, id int64) (*domain.Borrower, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Borrower, error)
	Update(ctx context.Context, b *domain.Borrower) error
}

type AwardStore interface {
	// Create returns sentinel.ErrDuplicate if the source contract id already
	// exists.
	Create(ctx context.Context, a *domain.Award) error
	GetByID(ctx context.Context, id int64) (*domain.Award, error)
	GetBySourceContractID(ctx context.Context, id string) (*domain.Award, error)
	Update(ctx context.Context, a *domain.Award) error
	// LastUpdatedAt is the ingestion watermark: the most recent
	// source_last_updated_at across non-previous awards, nil when none exist.
	LastUpdatedAt(ctx context.Context) (*time.Time, error)
}

type LenderStore interface {
	Create(ctx context.Context, l *domain.Lender) error
	GetByID(ctx context.Context, id int64) (*domain.Lender, error)
	List(ctx context.Context) ([]domain.Lender, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *domain.Message) error
	// ExistsByType reports whether a message of the given type was already
	// recorded for the application: the reminders' once-only guard.
	ExistsByType(ctx context.Context, applicationID int64, t domain.MessageType) (bool, error)
	ListByApplication(ctx context.Context, applicationID int64) ([]domain.Message, error)
}

type ActionStore interface {
	Create(ctx context.Context, a *domain.ApplicationAction) error
	// ListByType returns the application's actions of one type, oldest first.
	// Ordering matters: the SLA pairing consumes these FIFO.
	ListByType(ctx context.Context, applicationID int64, t domain.ApplicationActionType) ([]domain.ApplicationAction, error)
	ExistsByType(ctx context.Context, applicationID int64, t domain.ApplicationActionType) (bool, error)
}

type DocumentStore interface {
	Create(ctx context.Context, d *domain.BorrowerDocument) error
	CountByApplication(ctx context.Context, applicationID int64) (int, error)
	DeleteByApplication(ctx context.Context, applicationID int64) error
}

type StatisticStore interface {
	// Upsert replaces the snapshot keyed by (day, type, lender).
	Upsert(ctx context.Context, s *domain.Statistic) error
	Get(ctx context.Context, day time.Time, t domain.StatisticType, lenderID *int64) (*domain.Statistic, error)
}
