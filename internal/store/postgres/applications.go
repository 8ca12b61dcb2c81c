package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"credere/internal/domain"
)

type applicationStore struct {
	q querier
}

// applicationColumns renders the full column list, optionally qualified.
func applicationColumns(prefix string) string {
	cols := []string{
		"id", "access_token", "dedup_key", "status", "award_id", "borrower_id",
		"lender_id", "credit_product_id", "primary_email", "amount_requested",
		"contract_amount_submitted", "disbursed_final_amount", "currency",
		"calculator_data", "declined_data", "pending_documents", "expired_at",
		"created_at", "updated_at", "accepted_at", "declined_at", "submitted_at",
		"lender_started_at", "information_requested_at", "approved_at",
		"rejected_at", "contract_uploaded_at", "completed_at", "lapsed_at",
		"overdued_at", "archived_at",
	}
	if prefix != "" {
		for i, c := range cols {
			cols[i] = prefix + "." + c
		}
	}
	return " " + strings.Join(cols, ", ")
}

func (s *applicationStore) Create(ctx context.Context, app *domain.Application) error {
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO applications (
			access_token, dedup_key, status, award_id, borrower_id, lender_id,
			credit_product_id, primary_email, amount_requested,
			contract_amount_submitted, disbursed_final_amount, currency,
			calculator_data, declined_data, pending_documents, expired_at,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		RETURNING id`,
		app.AccessToken, app.DedupKey, string(app.Status), app.AwardID, app.BorrowerID,
		nullInt64(app.LenderID), nullInt64(app.CreditProductID), app.PrimaryEmail,
		nullDecimal(app.AmountRequested), nullDecimal(app.ContractAmountSubmitted),
		nullDecimal(app.DisbursedFinalAmount), app.Currency,
		nullJSON(app.CalculatorData), nullJSON(app.DeclinedData), app.PendingDocuments,
		nullTime(app.ExpiredAt), app.CreatedAt, app.UpdatedAt,
	).Scan(&app.ID)
	if err != nil {
		return fmt.Errorf("create application: %w", translateError(err))
	}
	return nil
}

func (s *applicationStore) GetByID(ctx context.Context, id int64) (*domain.Application, error) {
	return s.one(ctx, `SELECT`+applicationColumns("")+` FROM applications WHERE id = $1`, id)
}

func (s *applicationStore) GetByToken(ctx context.Context, token string) (*domain.Application, error) {
	return s.one(ctx, `SELECT`+applicationColumns("")+` FROM applications WHERE access_token = $1`, token)
}

func (s *applicationStore) GetByDedupKey(ctx context.Context, key string) (*domain.Application, error) {
	return s.one(ctx, `SELECT`+applicationColumns("")+` FROM applications WHERE dedup_key = $1`, key)
}

func (s *applicationStore) Update(ctx context.Context, app *domain.Application) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE applications SET
			access_token = $2, dedup_key = $3, status = $4, award_id = $5,
			borrower_id = $6, lender_id = $7, credit_product_id = $8,
			primary_email = $9, amount_requested = $10,
			contract_amount_submitted = $11, disbursed_final_amount = $12,
			currency = $13, calculator_data = $14, declined_data = $15,
			pending_documents = $16, expired_at = $17, updated_at = $18,
			accepted_at = $19, declined_at = $20, submitted_at = $21,
			lender_started_at = $22, information_requested_at = $23,
			approved_at = $24, rejected_at = $25, contract_uploaded_at = $26,
			completed_at = $27, lapsed_at = $28, overdued_at = $29,
			archived_at = $30
		WHERE id = $1`,
		app.ID, app.AccessToken, app.DedupKey, string(app.Status), app.AwardID,
		app.BorrowerID, nullInt64(app.LenderID), nullInt64(app.CreditProductID),
		app.PrimaryEmail, nullDecimal(app.AmountRequested),
		nullDecimal(app.ContractAmountSubmitted), nullDecimal(app.DisbursedFinalAmount),
		app.Currency, nullJSON(app.CalculatorData), nullJSON(app.DeclinedData),
		app.PendingDocuments, nullTime(app.ExpiredAt), app.UpdatedAt,
		nullTime(app.AcceptedAt), nullTime(app.DeclinedAt), nullTime(app.SubmittedAt),
		nullTime(app.LenderStartedAt), nullTime(app.InformationRequestedAt),
		nullTime(app.ApprovedAt), nullTime(app.RejectedAt), nullTime(app.ContractUploadedAt),
		nullTime(app.CompletedAt), nullTime(app.LapsedAt), nullTime(app.OverduedAt),
		nullTime(app.ArchivedAt),
	)
	if err != nil {
		return fmt.Errorf("update application: %w", translateError(err))
	}
	return requireRow(res)
}

func (s *applicationStore) PendingIntroReminder(ctx context.Context, now time.Time, window time.Duration) ([]domain.Application, error) {
	return s.list(ctx, `
		SELECT`+applicationColumns(`a`)+`
		FROM applications a
		JOIN borrowers b ON b.id = a.borrower_id
		WHERE a.status = 'PENDING'
		  AND a.expired_at > $1
		  AND a.expired_at <= $2
		  AND b.status = 'ACTIVE'
		  AND NOT EXISTS (
			SELECT 1 FROM messages m
			WHERE m.application_id = a.id AND m.type = $3
		  )
		ORDER BY a.id`,
		now, now.Add(window), string(domain.MessageIntroReminder))
}

func (s *applicationStore) PendingSubmitReminder(ctx context.Context, now time.Time, window time.Duration) ([]domain.Application, error) {
	return s.list(ctx, `
		SELECT`+applicationColumns(`a`)+`
		FROM applications a
		WHERE a.status = 'ACCEPTED'
		  AND a.expired_at > $1
		  AND a.expired_at <= $2
		  AND NOT EXISTS (
			SELECT 1 FROM messages m
			WHERE m.application_id = a.id AND m.type = $3
		  )
		ORDER BY a.id`,
		now, now.Add(window), string(domain.MessageSubmitReminder))
}

func (s *applicationStore) Lapsable(ctx context.Context, now time.Time, threshold time.Duration) ([]domain.Application, error) {
	cutoff := now.Add(-threshold)
	return s.list(ctx, `
		SELECT`+applicationColumns(`a`)+`
		FROM applications a
		WHERE a.archived_at IS NULL
		  AND (
			(a.status = 'PENDING' AND a.created_at < $1)
			OR (a.status = 'ACCEPTED' AND a.accepted_at < $1)
			OR (a.status = 'INFORMATION_REQUESTED' AND a.information_requested_at < $1)
		  )
		ORDER BY a.id`,
		cutoff)
}

func (s *applicationStore) Archivable(ctx context.Context, now time.Time, retention time.Duration) ([]domain.Application, error) {
	cutoff := now.Add(-retention)
	return s.list(ctx, `
		SELECT`+applicationColumns(`a`)+`
		FROM applications a
		WHERE a.archived_at IS NULL
		  AND (
			(a.status = 'DECLINED' AND a.declined_at < $1)
			OR (a.status = 'REJECTED' AND a.rejected_at < $1)
			OR (a.status = 'COMPLETED' AND a.completed_at < $1)
			OR (a.status = 'LAPSED' AND a.lapsed_at < $1)
		  )
		ORDER BY a.id`,
		cutoff)
}

func (s *applicationStore) WithStatuses(ctx context.Context, statuses ...domain.ApplicationStatus) ([]domain.Application, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(st)
	}
	return s.list(ctx, `
		SELECT`+applicationColumns(`a`)+`
		FROM applications a
		WHERE a.archived_at IS NULL
		  AND a.status IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY a.id`,
		args...)
}

func (s *applicationStore) CountActiveByBorrower(ctx context.Context, borrowerID, excludeID int64) (int, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM applications
		WHERE borrower_id = $1 AND id <> $2 AND archived_at IS NULL`,
		borrowerID, excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active applications: %w", err)
	}
	return count, nil
}

func (s *applicationStore) one(ctx context.Context, query string, args ...any) (*domain.Application, error) {
	row := s.q.QueryRowContext(ctx, query, args...)
	app, err := scanApplication(row)
	if err != nil {
		return nil, fmt.Errorf("get application: %w", translateError(err))
	}
	return app, nil
}

func (s *applicationStore) list(ctx context.Context, query string, args ...any) ([]domain.Application, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []domain.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*domain.Application, error) {
	var (
		app                        domain.Application
		status                     string
		lenderID, creditProductID  sql.NullInt64
		amountReq, amountContract  decimal.NullDecimal
		amountDisbursed            decimal.NullDecimal
		calculatorData, declined   []byte
		expiredAt, acceptedAt      sql.NullTime
		declinedAt, submittedAt    sql.NullTime
		lenderStartedAt, infoReqAt sql.NullTime
		approvedAt, rejectedAt     sql.NullTime
		contractUploadedAt         sql.NullTime
		completedAt, lapsedAt      sql.NullTime
		overduedAt, archivedAt     sql.NullTime
	)
	err := row.Scan(
		&app.ID, &app.AccessToken, &app.DedupKey, &status, &app.AwardID,
		&app.BorrowerID, &lenderID, &creditProductID, &app.PrimaryEmail,
		&amountReq, &amountContract, &amountDisbursed, &app.Currency,
		&calculatorData, &declined, &app.PendingDocuments, &expiredAt,
		&app.CreatedAt, &app.UpdatedAt, &acceptedAt, &declinedAt, &submittedAt,
		&lenderStartedAt, &infoReqAt, &approvedAt, &rejectedAt,
		&contractUploadedAt, &completedAt, &lapsedAt, &overduedAt, &archivedAt,
	)
	if err != nil {
		return nil, err
	}

	app.Status = domain.ApplicationStatus(status)
	app.LenderID = int64Ptr(lenderID)
	app.CreditProductID = int64Ptr(creditProductID)
	app.AmountRequested = decimalPtr(amountReq)
	app.ContractAmountSubmitted = decimalPtr(amountContract)
	app.DisbursedFinalAmount = decimalPtr(amountDisbursed)
	app.CalculatorData = calculatorData
	app.DeclinedData = declined
	app.ExpiredAt = timePtr(expiredAt)
	app.AcceptedAt = timePtr(acceptedAt)
	app.DeclinedAt = timePtr(declinedAt)
	app.SubmittedAt = timePtr(submittedAt)
	app.LenderStartedAt = timePtr(lenderStartedAt)
	app.InformationRequestedAt = timePtr(infoReqAt)
	app.ApprovedAt = timePtr(approvedAt)
	app.RejectedAt = timePtr(rejectedAt)
	app.ContractUploadedAt = timePtr(contractUploadedAt)
	app.CompletedAt = timePtr(completedAt)
	app.LapsedAt = timePtr(lapsedAt)
	app.OverduedAt = timePtr(overduedAt)
	app.ArchivedAt = timePtr(archivedAt)
	return &app, nil
}
