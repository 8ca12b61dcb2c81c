package lifecycle

import (
	"time"

	"credere/internal/domain"
)

// DaysWaitingForLender computes how many whole days an application has spent
// waiting on the lender since the lender started it, excluding the intervals
// where the ball was in the borrower's court.
//
// The timeline is reconstructed by pairing LENDER_REQUEST_INFORMATION actions
// against BORROWER_DOCUMENTS_COMPLETED actions oldest to oldest: the lender
// holds the ball from start until its first request, and from each borrower
// response until the next request. An open tail, no request yet or an
// unanswered response, runs until now. Both inputs must be ordered oldest
// first; all arithmetic is in UTC.
func DaysWaitingForLender(app *domain.Application, requests, completions []domain.ApplicationAction, now time.Time) int {
	if app.LenderStartedAt == nil {
		return 0
	}
	now = now.UTC()
	start := app.LenderStartedAt.UTC()

	days := 0
	ri := 0

	end := now
	if len(requests) > 0 {
		end = requests[0].CreatedAt.UTC()
		ri = 1
	}
	days += wholeDays(start, end)

	for _, response := range completions {
		end = now
		if ri < len(requests) {
			end = requests[ri].CreatedAt.UTC()
			ri++
		}
		days += wholeDays(response.CreatedAt.UTC(), end)

		if ri >= len(requests) {
			// At most one unanswered request can exist; anything after it has
			// no lender segment to attribute.
			break
		}
	}
	return days
}

func wholeDays(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / (24 * time.Hour))
}
