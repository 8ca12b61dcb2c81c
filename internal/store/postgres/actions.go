package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"credere/internal/domain"
)

type actionStore struct {
	q querier
}

func (s *actionStore) Create(ctx context.Context, a *domain.ApplicationAction) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO application_actions (type, application_id, user_id, data, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id`,
		string(a.Type), a.ApplicationID, nullInt64(a.UserID), nullJSON(a.Data), a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create action: %w", translateError(err))
	}
	return nil
}

func (s *actionStore) ListByType(ctx context.Context, applicationID int64, t domain.ApplicationActionType) ([]domain.ApplicationAction, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, type, application_id, user_id, data, created_at
		FROM application_actions
		WHERE application_id = $1 AND type = $2
		ORDER BY created_at, id`, applicationID, string(t))
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.ApplicationAction
	for rows.Next() {
		var (
			a          domain.ApplicationAction
			actionType string
			userID     sql.NullInt64
			data       []byte
		)
		if err := rows.Scan(&a.ID, &actionType, &a.ApplicationID, &userID, &data, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		a.Type = domain.ApplicationActionType(actionType)
		a.UserID = int64Ptr(userID)
		a.Data = data
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func (s *actionStore) ExistsByType(ctx context.Context, applicationID int64, t domain.ApplicationActionType) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM application_actions WHERE application_id = $1 AND type = $2
		)`, applicationID, string(t)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("action exists: %w", err)
	}
	return exists, nil
}
