// Package httptransport is the thin HTTP layer over the lifecycle service.
// Borrower routes authenticate by possession of the application's opaque
// access token in the URL; lender routes require a bearer JWT.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"credere/internal/domain"
	"credere/internal/lifecycle"
	"credere/internal/platform/middleware"
	pkgerrors "credere/pkg/errors"
)

// LifecycleService is the surface of the lifecycle engine the transport needs.
type LifecycleService interface {
	GetByToken(ctx context.Context, token string) (*domain.Application, error)
	Accept(ctx context.Context, token string) (*domain.Application, error)
	Decline(ctx context.Context, token string, p lifecycle.DeclineParams) (*domain.Application, error)
	RollbackDecline(ctx context.Context, token string) (*domain.Application, error)
	Submit(ctx context.Context, token string, p lifecycle.SubmitParams) (*domain.Application, error)
	CompleteInformationRequest(ctx context.Context, token string) (*domain.Application, error)
	UploadContract(ctx context.Context, token string, contractAmount decimal.Decimal) (*domain.Application, error)
	FindAlternativeCredit(ctx context.Context, token string) (*domain.Application, error)

	Start(ctx context.Context, applicationID, userID int64) (*domain.Application, error)
	RequestInformation(ctx context.Context, applicationID, userID int64, message string) (*domain.Application, error)
	Approve(ctx context.Context, applicationID, userID int64, data json.RawMessage) (*domain.Application, error)
	Reject(ctx context.Context, applicationID, userID int64, data json.RawMessage) (*domain.Application, error)
	Complete(ctx context.Context, applicationID, userID int64, disbursed decimal.Decimal) (*domain.Application, error)
}

// Handler handles application lifecycle endpoints.
type Handler struct {
	logger       *slog.Logger
	lifecycle    LifecycleService
	jwtValidator middleware.JWTValidator
}

func NewHandler(lifecycle LifecycleService, jwtValidator middleware.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:       logger,
		lifecycle:    lifecycle,
		jwtValidator: jwtValidator,
	}
}

// Register mounts the borrower and lender route groups.
func (h *Handler) Register(r chi.Router) {
	r.Route("/applications", func(r chi.Router) {
		r.Route("/{token}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/accept", h.handleAccept)
			r.Post("/decline", h.handleDecline)
			r.Post("/rollback-decline", h.handleRollbackDecline)
			r.Post("/submit", h.handleSubmit)
			r.Post("/complete-information-request", h.handleCompleteInformationRequest)
			r.Post("/confirm-upload-contract", h.handleConfirmUploadContract)
			r.Post("/find-alternative-credit", h.handleFindAlternativeCredit)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
			r.Post("/{id}/start", h.handleStart)
			r.Post("/{id}/request-information", h.handleRequestInformation)
			r.Post("/{id}/approve", h.handleApprove)
			r.Post("/{id}/reject", h.handleReject)
			r.Post("/{id}/complete", h.handleComplete)
		})
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	app, err := h.lifecycle.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.logError(r, "get application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	app, err := h.lifecycle.Accept(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.logError(r, "accept application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type declineRequest struct {
	DeclineAll   bool            `json:"decline_all"`
	DeclinedData json.RawMessage `json:"declined_data"`
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	var req declineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}
	app, err := h.lifecycle.Decline(r.Context(), chi.URLParam(r, "token"), lifecycle.DeclineParams{
		DeclineAll:   req.DeclineAll,
		DeclinedData: req.DeclinedData,
	})
	if err != nil {
		h.logError(r, "decline application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleRollbackDecline(w http.ResponseWriter, r *http.Request) {
	app, err := h.lifecycle.RollbackDecline(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.logError(r, "rollback decline", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type submitRequest struct {
	LenderID        int64           `json:"lender_id"`
	CreditProductID *int64          `json:"credit_product_id"`
	AmountRequested decimal.Decimal `json:"amount_requested"`
	CalculatorData  json.RawMessage `json:"calculator_data"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}
	app, err := h.lifecycle.Submit(r.Context(), chi.URLParam(r, "token"), lifecycle.SubmitParams{
		LenderID:        req.LenderID,
		CreditProductID: req.CreditProductID,
		AmountRequested: req.AmountRequested,
		CalculatorData:  req.CalculatorData,
	})
	if err != nil {
		h.logError(r, "submit application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleCompleteInformationRequest(w http.ResponseWriter, r *http.Request) {
	app, err := h.lifecycle.CompleteInformationRequest(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.logError(r, "complete information request", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type uploadContractRequest struct {
	ContractAmountSubmitted decimal.Decimal `json:"contract_amount_submitted"`
}

func (h *Handler) handleConfirmUploadContract(w http.ResponseWriter, r *http.Request) {
	var req uploadContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}
	app, err := h.lifecycle.UploadContract(r.Context(), chi.URLParam(r, "token"), req.ContractAmountSubmitted)
	if err != nil {
		h.logError(r, "confirm upload contract", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleFindAlternativeCredit(w http.ResponseWriter, r *http.Request) {
	app, err := h.lifecycle.FindAlternativeCredit(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.logError(r, "find alternative credit", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

func (h *Handler) logError(r *http.Request, operation string, err error) {
	// Conflicts and not-found are expected outcomes, not failures.
	level := slog.LevelError
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeConflict, pkgerrors.CodeNotFound, pkgerrors.CodeBadRequest, pkgerrors.CodeUnauthorized:
		level = slog.LevelWarn
	}
	h.logger.Log(r.Context(), level, operation+" failed",
		"request_id", middleware.GetRequestID(r.Context()),
		"error", err.Error(),
	)
}
