package domain

import (
	"encoding/json"
	"time"
)

type BorrowerStatus string

const (
	BorrowerActive BorrowerStatus = "ACTIVE"
	// BorrowerDeclinedOpportunities is set when a borrower declines with
	// decline_all; ingestion must never invite them again.
	BorrowerDeclinedOpportunities BorrowerStatus = "DECLINED_ALL_OPPORTUNITIES"
)

type BorrowerSize string

const (
	SizeNotInformed BorrowerSize = "NOT_INFORMED"
	SizeMicro       BorrowerSize = "MICRO"
	SizeSmall       BorrowerSize = "SMALL"
	SizeMedium      BorrowerSize = "MEDIUM"
)

// Borrower is one business entity. Identifier is a deterministic hash of the
// legal identifier and is unique: re-sighting a supplier on a later sweep
// updates the row, it never creates a second one.
type Borrower struct {
	ID         int64
	Identifier string
	LegalName  string
	Email      string
	Address    string
	// LegalIdentifier is the national tax/registry id the Identifier hash is
	// derived from.
	LegalIdentifier string
	Type            string
	Sector          string
	Size            BorrowerSize
	Status          BorrowerStatus
	SourceData      json.RawMessage
	MissingData     map[string]bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeclinedAt      *time.Time
}

// MergeSighting folds newly observed supplier fields into the borrower.
// The identifier never changes.
func (b *Borrower) MergeSighting(other Borrower) {
	b.LegalName = other.LegalName
	b.Email = other.Email
	b.Address = other.Address
	b.LegalIdentifier = other.LegalIdentifier
	b.Type = other.Type
	b.Sector = other.Sector
	b.SourceData = other.SourceData
	b.MissingData = MissingDataKeys(map[string]string{
		"legal_name":       b.LegalName,
		"email":            b.Email,
		"address":          b.Address,
		"legal_identifier": b.LegalIdentifier,
	})
}

// Scrub erases personal fields once no active application references the
// borrower. The identifier survives so future sightings still deduplicate.
func (b *Borrower) Scrub() {
	b.LegalName = ""
	b.Email = ""
	b.Address = ""
	b.LegalIdentifier = ""
	b.SourceData = nil
}

// MissingDataKeys maps each field name to whether its value was absent in the
// upstream record, kept for data-quality reporting.
func MissingDataKeys(fields map[string]string) map[string]bool {
	out := make(map[string]bool, len(fields))
	for k, v := range fields {
		out[k] = v == ""
	}
	return out
}
