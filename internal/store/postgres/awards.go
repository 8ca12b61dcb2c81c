package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"credere/internal/domain"
)

type awardStore struct {
	q querier
}

const awardColumns = ` id, borrower_id, source_contract_id, title, description,
	award_date, award_amount, award_currency, contract_start_date,
	contract_end_date, payment_method, buyer_name, source_url, entity_code,
	contract_status, source_last_updated_at, previous, procurement_method,
	contracting_process_id, procurement_category, source_data, missing_data,
	created_at, updated_at `

func (s *awardStore) Create(ctx context.Context, a *domain.Award) error {
	missing, err := json.Marshal(a.MissingData)
	if err != nil {
		return fmt.Errorf("encode missing data: %w", err)
	}
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO awards (
			borrower_id, source_contract_id, title, description, award_date,
			award_amount, award_currency, contract_start_date, contract_end_date,
			payment_method, buyer_name, source_url, entity_code, contract_status,
			source_last_updated_at, previous, procurement_method,
			contracting_process_id, procurement_category, source_data,
			missing_data, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
		RETURNING id`,
		nullInt64(a.BorrowerID), a.SourceContractID, a.Title, a.Description,
		nullTime(a.AwardDate), a.AwardAmount, a.AwardCurrency,
		nullTime(a.ContractStartDate), nullTime(a.ContractEndDate),
		nullJSON(a.PaymentMethod), a.BuyerName, a.SourceURL, a.EntityCode,
		a.ContractStatus, nullTime(a.SourceLastUpdatedAt), a.Previous,
		a.ProcurementMethod, a.ContractingProcessID, a.ProcurementCategory,
		nullJSON(a.SourceData), missing, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("create award: %w", translateError(err))
	}
	return nil
}

func (s *awardStore) GetByID(ctx context.Context, id int64) (*domain.Award, error) {
	return s.one(ctx, `SELECT`+awardColumns+`FROM awards WHERE id = $1`, id)
}

func (s *awardStore) GetBySourceContractID(ctx context.Context, id string) (*domain.Award, error) {
	return s.one(ctx, `SELECT`+awardColumns+`FROM awards WHERE source_contract_id = $1`, id)
}

func (s *awardStore) Update(ctx context.Context, a *domain.Award) error {
	missing, err := json.Marshal(a.MissingData)
	if err != nil {
		return fmt.Errorf("encode missing data: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE awards SET
			borrower_id = $2, title = $3, description = $4, award_date = $5,
			award_amount = $6, award_currency = $7, contract_start_date = $8,
			contract_end_date = $9, payment_method = $10, buyer_name = $11,
			source_url = $12, entity_code = $13, contract_status = $14,
			source_last_updated_at = $15, previous = $16,
			procurement_method = $17, contracting_process_id = $18,
			procurement_category = $19, source_data = $20, missing_data = $21,
			updated_at = $22
		WHERE id = $1`,
		a.ID, nullInt64(a.BorrowerID), a.Title, a.Description,
		nullTime(a.AwardDate), a.AwardAmount, a.AwardCurrency,
		nullTime(a.ContractStartDate), nullTime(a.ContractEndDate),
		nullJSON(a.PaymentMethod), a.BuyerName, a.SourceURL, a.EntityCode,
		a.ContractStatus, nullTime(a.SourceLastUpdatedAt), a.Previous,
		a.ProcurementMethod, a.ContractingProcessID, a.ProcurementCategory,
		nullJSON(a.SourceData), missing, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update award: %w", translateError(err))
	}
	return requireRow(res)
}

func (s *awardStore) LastUpdatedAt(ctx context.Context) (*time.Time, error) {
	var last sql.NullTime
	err := s.q.QueryRowContext(ctx,
		`SELECT MAX(source_last_updated_at) FROM awards WHERE previous = FALSE`,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("award watermark: %w", err)
	}
	return timePtr(last), nil
}

func (s *awardStore) one(ctx context.Context, query string, args ...any) (*domain.Award, error) {
	var (
		a           domain.Award
		borrowerID  sql.NullInt64
		awardDate   sql.NullTime
		startDate   sql.NullTime
		endDate     sql.NullTime
		lastUpdated sql.NullTime
		payment     []byte
		sourceData  []byte
		missing     []byte
	)
	err := s.q.QueryRowContext(ctx, query, args...).Scan(
		&a.ID, &borrowerID, &a.SourceContractID, &a.Title, &a.Description,
		&awardDate, &a.AwardAmount, &a.AwardCurrency, &startDate, &endDate,
		&payment, &a.BuyerName, &a.SourceURL, &a.EntityCode,
		&a.ContractStatus, &lastUpdated, &a.Previous, &a.ProcurementMethod,
		&a.ContractingProcessID, &a.ProcurementCategory, &sourceData,
		&missing, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get award: %w", translateError(err))
	}
	a.BorrowerID = int64Ptr(borrowerID)
	a.AwardDate = timePtr(awardDate)
	a.ContractStartDate = timePtr(startDate)
	a.ContractEndDate = timePtr(endDate)
	a.SourceLastUpdatedAt = timePtr(lastUpdated)
	a.PaymentMethod = payment
	a.SourceData = sourceData
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &a.MissingData); err != nil {
			return nil, fmt.Errorf("decode missing data: %w", err)
		}
	}
	return &a, nil
}
