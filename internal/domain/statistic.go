package domain

import "time"

type StatisticType string

const (
	StatisticApplicationKPIs StatisticType = "APPLICATION_KPIS"
	StatisticOptIn           StatisticType = "OPT_IN_STATISTICS"
)

// Statistic is a daily aggregate KPI snapshot, global or per-lender.
// Keyed by (Day, Type, LenderID) and upserted, not append-only.
type Statistic struct {
	ID        int64
	Type      StatisticType
	LenderID  *int64
	Day       time.Time
	Data      map[string]int
	CreatedAt time.Time
}
