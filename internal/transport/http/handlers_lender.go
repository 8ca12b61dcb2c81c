package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"credere/internal/platform/middleware"
	pkgerrors "credere/pkg/errors"
)

// Lender review endpoints. All sit behind RequireAuth; the acting user id
// comes from the validated JWT, never from the request body.

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	app, err := h.lifecycle.Start(r.Context(), id, middleware.GetUserID(r.Context()))
	if err != nil {
		h.logError(r, "start application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type requestInformationRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleRequestInformation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var req requestInformationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Message == "" {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "a message for the borrower is required"))
		return
	}
	app, err := h.lifecycle.RequestInformation(r.Context(), id, middleware.GetUserID(r.Context()), req.Message)
	if err != nil {
		h.logError(r, "request information", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type reviewRequest struct {
	Data json.RawMessage `json:"data"`
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	app, err := h.lifecycle.Approve(r.Context(), id, middleware.GetUserID(r.Context()), req.Data)
	if err != nil {
		h.logError(r, "approve application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var req reviewRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	app, err := h.lifecycle.Reject(r.Context(), id, middleware.GetUserID(r.Context()), req.Data)
	if err != nil {
		h.logError(r, "reject application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

type completeRequest struct {
	DisbursedFinalAmount decimal.Decimal `json:"disbursed_final_amount"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.applicationID(w, r)
	if !ok {
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid request body"))
		return
	}
	app, err := h.lifecycle.Complete(r.Context(), id, middleware.GetUserID(r.Context()), req.DisbursedFinalAmount)
	if err != nil {
		h.logError(r, "complete application", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}

func (h *Handler) applicationID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeBadRequest, "invalid application id"))
		return 0, false
	}
	return id, true
}
