package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"credere/internal/domain"
)

type borrowerStore struct {
	q querier
}

const borrowerColumns = ` id, identifier, legal_name, email, address, legal_identifier,
	type, sector, size, status, source_data, missing_data,
	created_at, updated_at, declined_at `

func (s *borrowerStore) Create(ctx context.Context, b *domain.Borrower) error {
	missing, err := json.Marshal(b.MissingData)
	if err != nil {
		return fmt.Errorf("encode missing data: %w", err)
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO borrowers (
			identifier, legal_name, email, address, legal_identifier,
			type, sector, size, status, source_data, missing_data,
			created_at, updated_at, declined_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id`,
		b.Identifier, b.LegalName, b.Email, b.Address, b.LegalIdentifier,
		b.Type, b.Sector, string(b.Size), string(b.Status),
		nullJSON(b.SourceData), missing,
		b.CreatedAt, b.UpdatedAt, nullTime(b.DeclinedAt),
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("create borrower: %w", translateError(err))
	}
	return nil
}

func (s *borrowerStore) GetByID(ctx context.Context, id int64) (*domain.Borrower, error) {
	return s.one(ctx, `SELECT`+borrowerColumns+`FROM borrowers WHERE id = $1`, id)
}

func (s *borrowerStore) GetByIdentifier(ctx context.Context, identifier string) (*domain.Borrower, error) {
	return s.one(ctx, `SELECT`+borrowerColumns+`FROM borrowers WHERE identifier = $1`, identifier)
}

func (s *borrowerStore) Update(ctx context.Context, b *domain.Borrower) error {
	missing, err := json.Marshal(b.MissingData)
	if err != nil {
		return fmt.Errorf("encode missing data: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE borrowers SET
			identifier = $2, legal_name = $3, email = $4, address = $5,
			legal_identifier = $6, type = $7, sector = $8, size = $9,
			status = $10, source_data = $11, missing_data = $12,
			updated_at = $13, declined_at = $14
		WHERE id = $1`,
		b.ID, b.Identifier, b.LegalName, b.Email, b.Address,
		b.LegalIdentifier, b.Type, b.Sector, string(b.Size),
		string(b.Status), nullJSON(b.SourceData), missing,
		b.UpdatedAt, nullTime(b.DeclinedAt),
	)
	if err != nil {
		return fmt.Errorf("update borrower: %w", translateError(err))
	}
	return requireRow(res)
}

func (s *borrowerStore) one(ctx context.Context, query string, args ...any) (*domain.Borrower, error) {
	var (
		b          domain.Borrower
		size       string
		status     string
		sourceData []byte
		missing    []byte
		declinedAt sql.NullTime
	)
	err := s.q.QueryRowContext(ctx, query, args...).Scan(
		&b.ID, &b.Identifier, &b.LegalName, &b.Email, &b.Address,
		&b.LegalIdentifier, &b.Type, &b.Sector, &size, &status,
		&sourceData, &missing, &b.CreatedAt, &b.UpdatedAt, &declinedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get borrower: %w", translateError(err))
	}
	b.Size = domain.BorrowerSize(size)
	b.Status = domain.BorrowerStatus(status)
	b.SourceData = sourceData
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &b.MissingData); err != nil {
			return nil, fmt.Errorf("decode missing data: %w", err)
		}
	}
	b.DeclinedAt = timePtr(declinedAt)
	return &b, nil
}
