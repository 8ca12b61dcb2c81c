package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"credere/internal/domain"
)

type lenderStore struct {
	q querier
}

const lenderColumns = ` id, name, email_group, type, sla_days, status,
	created_at, updated_at, deleted_at `

func (s *lenderStore) Create(ctx context.Context, l *domain.Lender) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO lenders (name, email_group, type, sla_days, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		l.Name, l.EmailGroup, l.Type, l.SLADays, l.Status, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("create lender: %w", translateError(err))
	}
	return nil
}

func (s *lenderStore) GetByID(ctx context.Context, id int64) (*domain.Lender, error) {
	var (
		l         domain.Lender
		deletedAt sql.NullTime
	)
	err := s.q.QueryRowContext(ctx,
		`SELECT`+lenderColumns+`FROM lenders WHERE id = $1`, id,
	).Scan(&l.ID, &l.Name, &l.EmailGroup, &l.Type, &l.SLADays, &l.Status,
		&l.CreatedAt, &l.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, fmt.Errorf("get lender: %w", translateError(err))
	}
	l.DeletedAt = timePtr(deletedAt)
	return &l, nil
}

func (s *lenderStore) List(ctx context.Context) ([]domain.Lender, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT`+lenderColumns+`FROM lenders WHERE deleted_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lenders: %w", err)
	}
	defer rows.Close()

	var lenders []domain.Lender
	for rows.Next() {
		var (
			l         domain.Lender
			deletedAt sql.NullTime
		)
		if err := rows.Scan(&l.ID, &l.Name, &l.EmailGroup, &l.Type, &l.SLADays,
			&l.Status, &l.CreatedAt, &l.UpdatedAt, &deletedAt); err != nil {
			return nil, fmt.Errorf("scan lender: %w", err)
		}
		l.DeletedAt = timePtr(deletedAt)
		lenders = append(lenders, l)
	}
	return lenders, rows.Err()
}
