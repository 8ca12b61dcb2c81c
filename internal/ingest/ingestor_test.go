package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"credere/internal/domain"
	"credere/internal/identity"
	"credere/internal/notify"
	"credere/internal/store/memory"
	pkgerrors "credere/pkg/errors"
)

// fakeSource serves canned pages without HTTP.
type fakeSource struct {
	pages     [][]ContractRecord
	previous  map[string][]ContractRecord
	suppliers map[string]SupplierRecord
}

func (f *fakeSource) NewContracts(_ context.Context, page int, _ time.Time) ([]ContractRecord, error) {
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

func (f *fakeSource) PreviousContracts(_ context.Context, supplierID string) ([]ContractRecord, error) {
	return f.previous[supplierID], nil
}

func (f *fakeSource) Supplier(_ context.Context, supplierID string) (SupplierRecord, error) {
	s, ok := f.suppliers[supplierID]
	if !ok {
		return SupplierRecord{}, pkgerrors.Newf(pkgerrors.CodeNotFound, "supplier %s not found upstream", supplierID)
	}
	return s, nil
}

type IngestorSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	source   *fakeSource
	notifier *notify.Recorder
	ingestor *Ingestor
	now      time.Time
}

func TestIngestorSuite(t *testing.T) {
	suite.Run(t, new(IngestorSuite))
}

func (s *IngestorSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.New()
	s.notifier = &notify.Recorder{}
	s.now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.source = &fakeSource{
		previous:  map[string][]ContractRecord{},
		suppliers: map[string]SupplierRecord{},
	}

	ident, err := identity.New("test-hash-key")
	s.Require().NoError(err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.ingestor = NewIngestor(s.store, s.source, ident, s.notifier, logger, Config{}).
		WithClock(func() time.Time { return s.now })
}

func (s *IngestorSuite) contract(contractID, supplierID string) ContractRecord {
	return ContractRecord{
		SourceContractID: contractID,
		SupplierID:       supplierID,
		SupplierName:     "Acme SAS",
		Title:            "Road maintenance",
		BuyerName:        "Bogota DC",
		AwardAmount:      decimal.NewFromInt(90_000_000),
		AwardCurrency:    "COP",
	}
}

func (s *IngestorSuite) addSupplier(supplierID, email string) {
	s.source.suppliers[supplierID] = SupplierRecord{
		LegalName: "Acme SAS",
		Email:     email,
		Address:   "Calle 1 # 2-3",
		Sector:    "construction",
	}
}

func (s *IngestorSuite) TestFetchNewAwards() {
	s.Run("creates borrower, award, application and invitation", func() {
		s.addSupplier("890123456", "owner@acme.example")
		s.source.pages = [][]ContractRecord{{s.contract("CO1.100", "890123456")}}

		summary, err := s.ingestor.FetchNewAwards(s.ctx)
		s.Require().NoError(err)
		s.Equal(Summary{Created: 1}, summary)

		award, err := s.store.Awards().GetBySourceContractID(s.ctx, "CO1.100")
		s.Require().NoError(err)
		s.Require().NotNil(award.BorrowerID)
		s.False(award.Previous)

		borrower, err := s.store.Borrowers().GetByID(s.ctx, *award.BorrowerID)
		s.Require().NoError(err)
		s.Equal(domain.BorrowerActive, borrower.Status)
		s.Equal("890123456", borrower.LegalIdentifier)

		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateInvitation))
	})

	s.Run("second run over the same window only skips", func() {
		summary, err := s.ingestor.FetchNewAwards(s.ctx)
		s.Require().NoError(err)
		s.Equal(Summary{Skipped: 1}, summary)
		// No duplicate invitation either.
		s.Equal(1, s.notifier.CountByTemplate(notify.TemplateInvitation))
	})
}

func (s *IngestorSuite) TestOptedOutBorrowerIsSkipped() {
	s.addSupplier("890123456", "owner@acme.example")
	declined := s.now.Add(-time.Hour)
	s.Require().NoError(s.store.Borrowers().Create(s.ctx, &domain.Borrower{
		Identifier: s.ingestor.ident.BorrowerIdentifier("890123456"),
		Status:     domain.BorrowerDeclinedOpportunities,
		DeclinedAt: &declined,
	}))
	s.source.pages = [][]ContractRecord{{s.contract("CO1.100", "890123456")}}

	summary, err := s.ingestor.FetchNewAwards(s.ctx)
	s.Require().NoError(err)
	s.Equal(Summary{Skipped: 1}, summary)

	// The whole record rolled back: not even the award was created.
	_, err = s.store.Awards().GetBySourceContractID(s.ctx, "CO1.100")
	s.Error(err)
	s.Equal(0, s.notifier.CountByTemplate(notify.TemplateInvitation))
}

func (s *IngestorSuite) TestMalformedRecordAbortsSweep() {
	s.addSupplier("890123456", "owner@acme.example")
	s.source.pages = [][]ContractRecord{{
		s.contract("", "890123456"),
		s.contract("CO1.200", "890123456"),
	}}

	_, err := s.ingestor.FetchNewAwards(s.ctx)
	s.Require().Error(err)
	s.True(pkgerrors.HasCode(err, pkgerrors.CodeSourceFormat))

	// The record after the malformed one was never reached.
	_, err = s.store.Awards().GetBySourceContractID(s.ctx, "CO1.200")
	s.Error(err)
}

func (s *IngestorSuite) TestMissingEmailSkipsInvitation() {
	s.addSupplier("890123456", "")
	s.source.pages = [][]ContractRecord{{s.contract("CO1.100", "890123456")}}

	summary, err := s.ingestor.FetchNewAwards(s.ctx)
	s.Require().NoError(err)
	s.Equal(Summary{Skipped: 1}, summary)
	s.Empty(s.notifier.Sent)
}

func (s *IngestorSuite) TestFailedInvitationRollsBackRecord() {
	s.addSupplier("890123456", "owner@acme.example")
	s.source.pages = [][]ContractRecord{{s.contract("CO1.100", "890123456")}}
	s.notifier.FailWith = errors.New("ses down")

	summary, err := s.ingestor.FetchNewAwards(s.ctx)
	s.Require().NoError(err)
	s.Equal(Summary{Failed: 1}, summary)

	// Not-yet-processed: the next run retries the record from scratch.
	_, err = s.store.Awards().GetBySourceContractID(s.ctx, "CO1.100")
	s.Error(err)

	s.notifier.FailWith = nil
	summary, err = s.ingestor.FetchNewAwards(s.ctx)
	s.Require().NoError(err)
	s.Equal(Summary{Created: 1}, summary)
}

func (s *IngestorSuite) TestPagination() {
	s.addSupplier("890123456", "owner@acme.example")
	s.source.pages = [][]ContractRecord{
		{s.contract("CO1.100", "890123456")},
		{s.contract("CO1.200", "890123456")},
	}

	summary, err := s.ingestor.FetchNewAwards(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, summary.Created)
}

func (s *IngestorSuite) TestFetchPreviousAwards() {
	s.addSupplier("890123456", "owner@acme.example")
	borrower := &domain.Borrower{
		Identifier:      s.ingestor.ident.BorrowerIdentifier("890123456"),
		LegalIdentifier: "890123456",
		Email:           "owner@acme.example",
		Status:          domain.BorrowerActive,
	}
	s.Require().NoError(s.store.Borrowers().Create(s.ctx, borrower))
	s.source.previous["890123456"] = []ContractRecord{
		s.contract("CO0.001", "890123456"),
		s.contract("CO0.002", "890123456"),
	}

	summary, err := s.ingestor.FetchPreviousAwards(s.ctx, borrower.ID)
	s.Require().NoError(err)
	s.Equal(2, summary.Created)

	award, err := s.store.Awards().GetBySourceContractID(s.ctx, "CO0.001")
	s.Require().NoError(err)
	s.True(award.Previous)
	s.Equal(borrower.ID, *award.BorrowerID)

	// History never creates applications or invitations.
	s.Empty(s.notifier.Sent)

	s.Run("rerun only skips", func() {
		summary, err := s.ingestor.FetchPreviousAwards(s.ctx, borrower.ID)
		s.Require().NoError(err)
		s.Equal(Summary{Skipped: 2}, summary)
	})
}
