package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Award represents one procurement contract fetched from the open-data
// source. Immutable once created except for the Previous flag, which the
// retention policy sets when the award leaves the active pipeline.
type Award struct {
	ID         int64
	BorrowerID *int64
	// SourceContractID is the natural key, unique across awards. The same
	// contract may appear on consecutive sweep windows; the second insert is
	// a benign skip.
	SourceContractID    string
	Title               string
	Description         string
	AwardDate           *time.Time
	AwardAmount         decimal.Decimal
	AwardCurrency       string
	ContractStartDate   *time.Time
	ContractEndDate     *time.Time
	PaymentMethod       json.RawMessage
	BuyerName           string
	SourceURL           string
	EntityCode          string
	ContractStatus      string
	SourceLastUpdatedAt *time.Time
	// Previous is true if the award was fetched as part of a borrower's
	// contract history rather than as a new opportunity.
	Previous             bool
	ProcurementMethod    string
	ContractingProcessID string
	ProcurementCategory  string
	SourceData           json.RawMessage
	MissingData          map[string]bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
