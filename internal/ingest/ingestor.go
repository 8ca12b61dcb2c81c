package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"credere/internal/domain"
	"credere/internal/identity"
	"credere/internal/notify"
	"credere/internal/store"
	"credere/pkg/email"
	pkgerrors "credere/pkg/errors"
	"credere/pkg/sentinel"
)

// Config carries the ingestion knobs.
type Config struct {
	// ExpirationDays is the borrower-facing window on a new invitation.
	ExpirationDays int
	// DefaultWindowDays bounds the first sweep when no watermark exists yet.
	DefaultWindowDays int
	// WatermarkSlackDays is subtracted from the stored watermark so records
	// updated around the boundary are re-offered; dedup absorbs the overlap.
	WatermarkSlackDays int
}

func (c *Config) defaults() {
	if c.ExpirationDays <= 0 {
		c.ExpirationDays = 7
	}
	if c.DefaultWindowDays <= 0 {
		c.DefaultWindowDays = 365
	}
	if c.WatermarkSlackDays <= 0 {
		c.WatermarkSlackDays = 1
	}
}

// Summary reports what one sweep did.
type Summary struct {
	Created int
	Skipped int
	Failed  int
}

// Ingestor runs the award sweep. Each record is processed in its own
// transaction, so one record's failure never rolls back another's success.
type Ingestor struct {
	uow      store.UnitOfWork
	source   Source
	ident    *identity.Service
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

func NewIngestor(uow store.UnitOfWork, source Source, ident *identity.Service, notifier notify.Notifier, logger *slog.Logger, cfg Config) *Ingestor {
	cfg.defaults()
	return &Ingestor{
		uow:      uow,
		source:   source,
		ident:    ident,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the wall clock, for tests.
func (i *Ingestor) WithClock(now func() time.Time) *Ingestor {
	i.now = now
	return i
}

// FetchNewAwards paginates the upstream source from the watermark and creates
// borrowers, awards and PENDING applications. A malformed upstream schema
// aborts the sweep; everything else is absorbed per record.
func (i *Ingestor) FetchNewAwards(ctx context.Context) (Summary, error) {
	var summary Summary

	since, err := i.since(ctx)
	if err != nil {
		return summary, err
	}

	for page := 0; ; page++ {
		records, err := i.source.NewContracts(ctx, page, since)
		if err != nil {
			return summary, err
		}
		if len(records) == 0 {
			break
		}
		i.logger.InfoContext(ctx, "processing contracts page", "page", page, "records", len(records))

		for _, rec := range records {
			switch err := i.processRecord(ctx, rec); {
			case err == nil:
				summary.Created++
			case pkgerrors.IsSkip(err):
				summary.Skipped++
				i.logger.InfoContext(ctx, "award skipped",
					"source_contract_id", rec.SourceContractID, "reason", err.Error())
			case pkgerrors.HasCode(err, pkgerrors.CodeSourceFormat):
				// Schema break: likely affects every later record too.
				return summary, err
			default:
				summary.Failed++
				i.logger.ErrorContext(ctx, "award processing failed",
					"source_contract_id", rec.SourceContractID, "error", err)
			}
		}
	}

	i.logger.InfoContext(ctx, "award sweep finished",
		"created", summary.Created, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

// FetchPreviousAwards records a borrower's contract history as previous
// awards. No applications are created from these.
func (i *Ingestor) FetchPreviousAwards(ctx context.Context, borrowerID int64) (Summary, error) {
	var summary Summary

	borrower, err := i.uow.Borrowers().GetByID(ctx, borrowerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return summary, pkgerrors.Wrap(err, pkgerrors.CodeNotFound, "borrower not found")
		}
		return summary, err
	}
	if borrower.LegalIdentifier == "" {
		return summary, pkgerrors.New(pkgerrors.CodeConflict, "borrower has no legal identifier on record")
	}

	records, err := i.source.PreviousContracts(ctx, borrower.LegalIdentifier)
	if err != nil {
		return summary, err
	}

	for _, rec := range records {
		if rec.SourceContractID == "" {
			return summary, pkgerrors.New(pkgerrors.CodeSourceFormat, "contract record is missing its source contract id")
		}
		err := i.uow.RunInTx(ctx, func(tx store.Tx) error {
			award := i.buildAward(rec, &borrower.ID, true)
			if err := tx.Awards().Create(ctx, award); err != nil {
				if errors.Is(err, sentinel.ErrDuplicate) {
					return pkgerrors.New(pkgerrors.CodeSkipped, "award already recorded")
				}
				return err
			}
			return nil
		})
		switch {
		case err == nil:
			summary.Created++
		case pkgerrors.IsSkip(err):
			summary.Skipped++
		default:
			summary.Failed++
			i.logger.ErrorContext(ctx, "previous award failed",
				"source_contract_id", rec.SourceContractID, "error", err)
		}
	}
	return summary, nil
}

// FetchPreviousAwardsAsync runs FetchPreviousAwards in the background with
// its own deadline. Failures are logged; contract history is enrichment, not
// a dependency of the accept flow.
func (i *Ingestor) FetchPreviousAwardsAsync(ctx context.Context, borrowerID int64) {
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
		defer cancel()
		if _, err := i.FetchPreviousAwards(ctx, borrowerID); err != nil {
			i.logger.ErrorContext(ctx, "previous awards fetch failed", "borrower_id", borrowerID, "error", err)
		}
	}()
}

// since resolves the sweep's lower bound: the stored watermark minus slack, or
// the configured default window on a cold start.
func (i *Ingestor) since(ctx context.Context) (time.Time, error) {
	watermark, err := i.uow.Awards().LastUpdatedAt(ctx)
	if err != nil {
		return time.Time{}, err
	}
	now := i.now()
	if watermark == nil {
		return now.AddDate(0, 0, -i.cfg.DefaultWindowDays), nil
	}
	return watermark.AddDate(0, 0, -i.cfg.WatermarkSlackDays), nil
}

// processRecord handles one contract in one transaction: borrower, award,
// application, invitation. Any error rolls the record back whole.
func (i *Ingestor) processRecord(ctx context.Context, rec ContractRecord) error {
	if rec.SourceContractID == "" || rec.SupplierID == "" {
		return pkgerrors.Newf(pkgerrors.CodeSourceFormat,
			"contract record is missing natural keys (contract_id=%q supplier_id=%q)",
			rec.SourceContractID, rec.SupplierID)
	}

	supplier, err := i.source.Supplier(ctx, rec.SupplierID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeSourceFormat) {
			return err
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeSkipped, "supplier lookup failed")
	}

	return i.uow.RunInTx(ctx, func(tx store.Tx) error {
		borrower, err := i.resolveBorrower(ctx, tx, rec, supplier)
		if err != nil {
			return err
		}

		award := i.buildAward(rec, &borrower.ID, false)
		if err := tx.Awards().Create(ctx, award); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return pkgerrors.New(pkgerrors.CodeSkipped, "award already exists")
			}
			return err
		}

		if borrower.Email == "" {
			return pkgerrors.New(pkgerrors.CodeSkipped, "borrower has no email on record")
		}

		now := i.now()
		dedup := i.ident.DedupKey(borrower.LegalIdentifier, rec.SourceContractID)
		expires := now.AddDate(0, 0, i.cfg.ExpirationDays)
		app := &domain.Application{
			AccessToken:  identity.OpaqueToken(dedup),
			DedupKey:     dedup,
			Status:       domain.StatusPending,
			AwardID:      award.ID,
			BorrowerID:   borrower.ID,
			PrimaryEmail: borrower.Email,
			Currency:     award.AwardCurrency,
			ExpiredAt:    &expires,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Applications().Create(ctx, app); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return pkgerrors.New(pkgerrors.CodeSkipped, "application already exists for this award and borrower")
			}
			return err
		}

		externalID, err := i.notifier.Send(ctx, notify.TemplateInvitation, app.PrimaryEmail, map[string]string{
			"application_token": app.AccessToken,
			"buyer_name":        award.BuyerName,
			"award_title":       award.Title,
			"recipient_name":    recipientName(borrower),
		})
		if err != nil {
			return pkgerrors.Wrap(err, pkgerrors.CodeUnavailable, "invitation dispatch failed")
		}
		return tx.Messages().Create(ctx, &domain.Message{
			Type:              domain.MessageBorrowerInvitation,
			ApplicationID:     app.ID,
			ExternalMessageID: externalID,
			CreatedAt:         now,
		})
	})
}

// resolveBorrower finds or creates the borrower for the record's supplier.
// Re-sighting an existing borrower refreshes their fields in place; an
// opted-out borrower skips the record.
func (i *Ingestor) resolveBorrower(ctx context.Context, tx store.Tx, rec ContractRecord, supplier SupplierRecord) (*domain.Borrower, error) {
	identifier := i.ident.BorrowerIdentifier(rec.SupplierID)

	existing, err := tx.Borrowers().GetByIdentifier(ctx, identifier)
	switch {
	case err == nil:
		if existing.Status == domain.BorrowerDeclinedOpportunities {
			return nil, pkgerrors.New(pkgerrors.CodeSkipped, "borrower declined all opportunities")
		}
		existing.MergeSighting(domain.Borrower{
			LegalName:       firstNonEmpty(supplier.LegalName, rec.SupplierName),
			Email:           supplier.Email,
			Address:         supplier.Address,
			LegalIdentifier: rec.SupplierID,
			Type:            supplier.Type,
			Sector:          supplier.Sector,
			SourceData:      supplier.Raw,
		})
		existing.UpdatedAt = i.now()
		if err := tx.Borrowers().Update(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil

	case errors.Is(err, sentinel.ErrNotFound):
		now := i.now()
		borrower := &domain.Borrower{
			Identifier:      identifier,
			LegalName:       firstNonEmpty(supplier.LegalName, rec.SupplierName),
			Email:           supplier.Email,
			Address:         supplier.Address,
			LegalIdentifier: rec.SupplierID,
			Type:            supplier.Type,
			Sector:          supplier.Sector,
			Size:            domain.SizeNotInformed,
			Status:          domain.BorrowerActive,
			SourceData:      supplier.Raw,
			MissingData: domain.MissingDataKeys(map[string]string{
				"legal_name":       supplier.LegalName,
				"email":            supplier.Email,
				"address":          supplier.Address,
				"legal_identifier": rec.SupplierID,
			}),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.Borrowers().Create(ctx, borrower); err != nil {
			return nil, err
		}
		return borrower, nil

	default:
		return nil, err
	}
}

func (i *Ingestor) buildAward(rec ContractRecord, borrowerID *int64, previous bool) *domain.Award {
	now := i.now()
	return &domain.Award{
		BorrowerID:           borrowerID,
		SourceContractID:     rec.SourceContractID,
		Title:                rec.Title,
		Description:          rec.Description,
		AwardDate:            rec.AwardDate,
		AwardAmount:          rec.AwardAmount,
		AwardCurrency:        rec.AwardCurrency,
		ContractStartDate:    rec.ContractStartDate,
		ContractEndDate:      rec.ContractEndDate,
		PaymentMethod:        rec.PaymentMethod,
		BuyerName:            rec.BuyerName,
		SourceURL:            rec.SourceURL,
		EntityCode:           rec.EntityCode,
		ContractStatus:       rec.ContractStatus,
		SourceLastUpdatedAt:  rec.SourceLastUpdatedAt,
		Previous:             previous,
		ProcurementMethod:    rec.ProcurementMethod,
		ContractingProcessID: rec.ContractingProcessID,
		ProcurementCategory:  rec.ProcurementCategory,
		SourceData:           rec.Raw,
		MissingData: domain.MissingDataKeys(map[string]string{
			"source_contract_id": rec.SourceContractID,
			"title":              rec.Title,
			"buyer_name":         rec.BuyerName,
			"award_amount":       rec.AwardAmount.String(),
		}),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// recipientName picks the salutation for outbound mail: the legal name when
// the source provided one, otherwise a name derived from the email address.
func recipientName(b *domain.Borrower) string {
	if b.LegalName != "" {
		return b.LegalName
	}
	first, last := email.DeriveNameFromEmail(b.Email)
	return first + " " + last
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
