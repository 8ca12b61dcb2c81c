package domain

import "time"

// Lender is a financial institution processing applications. SLADays is the
// lender-specific service-level threshold for responding to a started
// application; the overdue policy alerts against it.
type Lender struct {
	ID         int64
	Name       string
	EmailGroup string
	Type       string
	SLADays    int
	Status     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}
