package postgres

import (
	"context"
	"fmt"

	"credere/internal/domain"
)

type documentStore struct {
	q querier
}

func (s *documentStore) Create(ctx context.Context, d *domain.BorrowerDocument) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO borrower_documents (application_id, type, name, verified, file, created_at, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id`,
		d.ApplicationID, string(d.Type), d.Name, d.Verified, d.File,
		d.CreatedAt, nullTime(d.SubmittedAt),
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("create document: %w", translateError(err))
	}
	return nil
}

func (s *documentStore) CountByApplication(ctx context.Context, applicationID int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrower_documents WHERE application_id = $1`,
		applicationID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (s *documentStore) DeleteByApplication(ctx context.Context, applicationID int64) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM borrower_documents WHERE application_id = $1`, applicationID)
	if err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}
