package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"credere/internal/domain"
)

type statisticStore struct {
	q querier
}

// Upsert replaces the snapshot for (day, type, lender). NULL lender ids are
// folded to 0 in the stored key column so the unique constraint can see them.
func (s *statisticStore) Upsert(ctx context.Context, stat *domain.Statistic) error {
	data, err := json.Marshal(stat.Data)
	if err != nil {
		return fmt.Errorf("encode statistic: %w", err)
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO statistics (type, lender_id, lender_key, day, data, created_at)
		VALUES ($1,$2,COALESCE($2,0),$3,$4,$5)
		ON CONFLICT (day, type, lender_key)
		DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at
		RETURNING id`,
		string(stat.Type), nullInt64(stat.LenderID), stat.Day, data, stat.CreatedAt,
	).Scan(&stat.ID)
	if err != nil {
		return fmt.Errorf("upsert statistic: %w", translateError(err))
	}
	return nil
}

func (s *statisticStore) Get(ctx context.Context, day time.Time, t domain.StatisticType, lenderID *int64) (*domain.Statistic, error) {
	var key int64
	if lenderID != nil {
		key = *lenderID
	}
	var (
		stat     domain.Statistic
		statType string
		lender   sql.NullInt64
		data     []byte
	)
	err := s.q.QueryRowContext(ctx, `
		SELECT id, type, lender_id, day, data, created_at
		FROM statistics
		WHERE day = $1 AND type = $2 AND lender_key = $3`,
		day, string(t), key,
	).Scan(&stat.ID, &statType, &lender, &stat.Day, &data, &stat.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get statistic: %w", translateError(err))
	}
	stat.Type = domain.StatisticType(statType)
	stat.LenderID = int64Ptr(lender)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &stat.Data); err != nil {
			return nil, fmt.Errorf("decode statistic: %w", err)
		}
	}
	return &stat, nil
}
