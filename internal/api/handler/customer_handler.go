package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/domain/customer"
	"lending-engine/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, message, field := http.StatusInternalServerError, "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, apperrors.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrCreditLimitExceeded), errors.Is(err, apperrors.ErrAmountExceedsOutstanding):
		status, message = http.StatusBadRequest, err.Error()
	case errors.As(err, &validationError):
		status, message, field = http.StatusBadRequest, validationError.Message, validationError.Field
	case errors.As(err, &appErr):
		message = appErr.Error()
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, "must be a decimal number")
	}
	return amount, nil
}

type CustomerHandler struct {
	service customer.CustomerService
	logger  *slog.Logger
}

func NewCustomerHandler(s customer.CustomerService, l *slog.Logger) *CustomerHandler {
	if s == nil {
		panic("customer service cannot be nil")
	}
	return &CustomerHandler{
		service: s,
		logger:  l.With("component", "CustomerHandler"),
	}
}

// CreateCustomer handles POST /customers
// @Summary Create a new customer
// @Description Creates a customer with an external id and a credit score. Status is always pending at creation.
// @Tags Customers
// @Accept json
// @Produce json
// @Param request body dto.CreateCustomerRequest true "Customer creation request"
// @Success 201 {object} dto.CustomerResponse "Customer successfully created"
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload"
// @Failure 409 {object} dto.ErrorResponse "Duplicate external id"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customers [post]
// @Security BearerAuth
func (h *CustomerHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateCustomerRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	score, err := parseAmount("score", req.Score)
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.service.CreateCustomer(r.Context(), req.ExternalID, score)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Service failed to create customer", slog.Any("error", err))
		respondError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Customer created", slog.String("externalID", created.ExternalID))
	respondJSON(w, http.StatusCreated, dto.NewCustomerResponse(created))
}

// ListCustomers handles GET /customers
// @Summary List customers with balances
// @Description Returns every customer's external id, score, computed total debt and available amount.
// @Tags Customers
// @Produce json
// @Success 200 {array} dto.CustomerBalanceResponse "List of customer balances"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customers [get]
// @Security BearerAuth
func (h *CustomerHandler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	balances, err := h.service.ListBalances(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Service failed to list balances", slog.Any("error", err))
		respondError(w, err)
		return
	}

	resp := make([]dto.CustomerBalanceResponse, 0, len(balances))
	for _, b := range balances {
		resp = append(resp, dto.NewCustomerBalanceResponse(b))
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetCustomerBalance handles GET /customers/{externalID}
// @Summary Retrieve one customer's balance
// @Description Returns the customer's score, total outstanding debt and available amount. The available amount may be negative.
// @Tags Customers
// @Produce json
// @Param externalID path string true "Customer external ID"
// @Success 200 {object} dto.CustomerBalanceResponse "Balance retrieved"
// @Failure 404 {object} dto.ErrorResponse "Customer not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customers/{externalID} [get]
// @Security BearerAuth
func (h *CustomerHandler) GetCustomerBalance(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	if externalID == "" {
		respondError(w, fmt.Errorf("%w: externalID not found in URL path", apperrors.ErrInvalidArgument))
		return
	}

	balance, err := h.service.GetBalance(r.Context(), externalID)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "Service failed to get balance", slog.Any("error", err))
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCustomerBalanceResponse(balance))
}
