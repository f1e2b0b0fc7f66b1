package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"origen/internal/common/logging"
	"origen/internal/origination/application"
	"origen/internal/origination/domain"
)

// Handler handles HTTP requests for the origination context.
type Handler struct {
	service *application.LifecycleService
}

// NewHandler creates a new Handler.
func NewHandler(service *application.LifecycleService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the origination routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /credit-requests", h.CreateCreditRequest)
	mux.HandleFunc("GET /credit-requests", h.ListCreditRequests)
	mux.HandleFunc("GET /credit-requests/{id}", h.GetCreditRequest)
	mux.HandleFunc("PATCH /credit-requests/{id}/financials", h.UpdateFinancials)
	mux.HandleFunc("POST /credit-requests/{id}/submit", h.SubmitForReview)
	mux.HandleFunc("POST /credit-requests/{id}/decision", h.Decide)
	mux.HandleFunc("POST /credit-requests/{id}/cancel", h.Cancel)
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateCreditRequestRequest is the JSON request body for creating a request.
type CreateCreditRequestRequest struct {
	RequestNumber       string          `json:"request_number"`
	ClientID            int64           `json:"client_id"`
	VehicleID           int64           `json:"vehicle_id"`
	SellerID            int64           `json:"seller_id"`
	Amount              decimal.Decimal `json:"amount"`
	TermMonths          int             `json:"term_months"`
	DownPayment         decimal.Decimal `json:"down_payment"`
	AnnualRate          decimal.Decimal `json:"annual_rate"`
	InternalScore       decimal.Decimal `json:"internal_score"`
	ExternalScore       decimal.Decimal `json:"external_score"`
	InstallmentToIncome decimal.Decimal `json:"installment_to_income"`
}

// CreateCreditRequest handles POST /credit-requests.
func (h *Handler) CreateCreditRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCreditRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RequestNumber == "" {
		writeError(w, http.StatusBadRequest, "request_number is required")
		return
	}

	resp, err := h.service.Create(ctx, application.CreateRequest{
		RequestNumber:       req.RequestNumber,
		ClientID:            req.ClientID,
		VehicleID:           req.VehicleID,
		SellerID:            req.SellerID,
		Amount:              req.Amount,
		TermMonths:          req.TermMonths,
		DownPayment:         req.DownPayment,
		AnnualRate:          req.AnnualRate,
		InternalScore:       req.InternalScore,
		ExternalScore:       req.ExternalScore,
		InstallmentToIncome: req.InstallmentToIncome,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// GetCreditRequest handles GET /credit-requests/{id}.
func (h *Handler) GetCreditRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	resp, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListCreditRequests handles GET /credit-requests.
func (h *Handler) ListCreditRequests(w http.ResponseWriter, r *http.Request) {
	var filter domain.ListFilter

	if raw := r.URL.Query().Get("state"); raw != "" {
		state, err := domain.ParseState(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid state filter")
			return
		}
		filter.State = &state
	}
	if raw := r.URL.Query().Get("client_id"); raw != "" {
		clientID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid client_id filter")
			return
		}
		filter.ClientID = &clientID
	}

	resp, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateFinancialsRequest is the JSON request body for a financial update.
// Omitted fields keep their current value.
type UpdateFinancialsRequest struct {
	ExpectedVersion int64            `json:"expected_version"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	TermMonths      *int             `json:"term_months,omitempty"`
	DownPayment     *decimal.Decimal `json:"down_payment,omitempty"`
	AnnualRate      *decimal.Decimal `json:"annual_rate,omitempty"`
}

// UpdateFinancials handles PATCH /credit-requests/{id}/financials.
func (h *Handler) UpdateFinancials(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdateFinancialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.UpdateFinancials(r.Context(), application.UpdateFinancialsRequest{
		ID:              id,
		ExpectedVersion: req.ExpectedVersion,
		Amount:          req.Amount,
		TermMonths:      req.TermMonths,
		DownPayment:     req.DownPayment,
		AnnualRate:      req.AnnualRate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// versionedRequest is the JSON request body for submit and cancel.
type versionedRequest struct {
	ExpectedVersion int64 `json:"expected_version"`
}

// SubmitForReview handles POST /credit-requests/{id}/submit.
func (h *Handler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req versionedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.SubmitForReview(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// DecideRequest is the JSON request body for a reviewer decision.
type DecideRequest struct {
	ExpectedVersion int64  `json:"expected_version"`
	Decision        string `json:"decision"`
	Override        bool   `json:"override,omitempty"`
}

// Decide handles POST /credit-requests/{id}/decision.
func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Decide(r.Context(), application.DecideRequest{
		ID:              id,
		ExpectedVersion: req.ExpectedVersion,
		Decision:        application.Decision(req.Decision),
		Override:        req.Override,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /credit-requests/{id}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req versionedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.service.Cancel(r.Context(), id, req.ExpectedVersion)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid credit request id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func handleServiceError(w http.ResponseWriter, err error) {
	var transitionErr domain.InvalidTransitionError
	var immutableErr domain.ImmutableStateError
	var referenceErr domain.ReferenceNotFoundError

	switch {
	case errors.Is(err, domain.ErrInvalidFinancialInput),
		errors.Is(err, domain.ErrInvalidRequestNumber),
		errors.Is(err, domain.ErrInvalidReferenceID),
		errors.Is(err, application.ErrUnknownDecision):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "credit request not found")
	case errors.Is(err, domain.ErrDuplicateRequestNumber):
		writeError(w, http.StatusConflict, "request number already exists")
	case errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "concurrent modification detected, please re-read and retry")
	case errors.As(err, &transitionErr):
		writeError(w, http.StatusConflict, transitionErr.Error())
	case errors.As(err, &immutableErr):
		writeError(w, http.StatusConflict, immutableErr.Error())
	case errors.As(err, &referenceErr):
		writeError(w, http.StatusUnprocessableEntity, referenceErr.Error())
	case errors.Is(err, domain.ErrOverrideNotPermitted),
		errors.Is(err, domain.ErrVerdictNotAdmissible):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logging.Error("Internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
