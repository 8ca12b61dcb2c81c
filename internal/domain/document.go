package domain

import "time"

type BorrowerDocumentType string

const (
	DocumentIncorporation      BorrowerDocumentType = "INCORPORATION_DOCUMENT"
	DocumentSupplierRegistry   BorrowerDocumentType = "SUPPLIER_REGISTRATION_DOCUMENT"
	DocumentBankCertification  BorrowerDocumentType = "BANK_CERTIFICATION_DOCUMENT"
	DocumentFinancialStatement BorrowerDocumentType = "FINANCIAL_STATEMENT"
	DocumentSignedContract     BorrowerDocumentType = "SIGNED_CONTRACT"
)

// BorrowerDocument is a file the borrower uploaded for one application.
// The retention sweep deletes documents outright; the audit trail stays.
type BorrowerDocument struct {
	ID            int64
	ApplicationID int64
	Type          BorrowerDocumentType
	Name          string
	Verified      bool
	File          []byte
	CreatedAt     time.Time
	SubmittedAt   *time.Time
}
