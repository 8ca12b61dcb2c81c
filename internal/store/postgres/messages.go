package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"credere/internal/domain"
)

type messageStore struct {
	q querier
}

func (s *messageStore) Create(ctx context.Context, m *domain.Message) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO messages (type, application_id, lender_id, external_message_id, body, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING id`,
		string(m.Type), m.ApplicationID, nullInt64(m.LenderID),
		m.ExternalMessageID, m.Body, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("create message: %w", translateError(err))
	}
	return nil
}

func (s *messageStore) ExistsByType(ctx context.Context, applicationID int64, t domain.MessageType) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages WHERE application_id = $1 AND type = $2
		)`, applicationID, string(t)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("message exists: %w", err)
	}
	return exists, nil
}

func (s *messageStore) ListByApplication(ctx context.Context, applicationID int64) ([]domain.Message, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, type, application_id, lender_id, external_message_id, body, created_at
		FROM messages
		WHERE application_id = $1
		ORDER BY created_at, id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var (
			m        domain.Message
			msgType  string
			lenderID sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &msgType, &m.ApplicationID, &lenderID,
			&m.ExternalMessageID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = domain.MessageType(msgType)
		m.LenderID = int64Ptr(lenderID)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
