package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"credere/internal/domain"
	pkgerrors "credere/pkg/errors"
)

// applicationResponse is the borrower- and lender-facing view of an
// application. Internal keys (dedup key, borrower id internals) stay out.
type applicationResponse struct {
	ID                      int64            `json:"id"`
	Status                  string           `json:"status"`
	AwardID                 int64            `json:"award_id"`
	LenderID                *int64           `json:"lender_id,omitempty"`
	CreditProductID         *int64           `json:"credit_product_id,omitempty"`
	AmountRequested         *decimal.Decimal `json:"amount_requested,omitempty"`
	ContractAmountSubmitted *decimal.Decimal `json:"contract_amount_submitted,omitempty"`
	DisbursedFinalAmount    *decimal.Decimal `json:"disbursed_final_amount,omitempty"`
	Currency                string           `json:"currency"`
	CalculatorData          json.RawMessage  `json:"calculator_data,omitempty"`
	PendingDocuments        bool             `json:"pending_documents"`
	ExpiredAt               *time.Time       `json:"expired_at,omitempty"`
	CreatedAt               time.Time        `json:"created_at"`
	UpdatedAt               time.Time        `json:"updated_at"`
}

func toApplicationResponse(app *domain.Application) applicationResponse {
	return applicationResponse{
		ID:                      app.ID,
		Status:                  string(app.Status),
		AwardID:                 app.AwardID,
		LenderID:                app.LenderID,
		CreditProductID:         app.CreditProductID,
		AmountRequested:         app.AmountRequested,
		ContractAmountSubmitted: app.ContractAmountSubmitted,
		DisbursedFinalAmount:    app.DisbursedFinalAmount,
		Currency:                app.Currency,
		CalculatorData:          app.CalculatorData,
		PendingDocuments:        app.PendingDocuments,
		ExpiredAt:               app.ExpiredAt,
		CreatedAt:               app.CreatedAt,
		UpdatedAt:               app.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain error codes to HTTP statuses with a consistent JSON
// envelope.
func writeError(w http.ResponseWriter, err error) {
	code := pkgerrors.CodeOf(err)
	message := "internal server error"
	var de *pkgerrors.DomainError
	if errors.As(err, &de) {
		message = de.Message
	}
	writeJSON(w, pkgerrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}
