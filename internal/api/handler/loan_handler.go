package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/domain/loan"
	"lending-engine/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
)

type LoanHandler struct {
	service loan.LoanService
	logger  *slog.Logger
}

func NewLoanHandler(s loan.LoanService, l *slog.Logger) *LoanHandler {
	if s == nil {
		panic("loan service cannot be nil")
	}
	return &LoanHandler{
		service: s,
		logger:  l.With("component", "LoanHandler"),
	}
}

// CreateLoan handles POST /loans
// @Summary Admit a new loan
// @Description Admits a loan when the customer's active outstanding balances plus the requested amount stay within the credit score. A total exactly equal to the score is accepted.
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body dto.CreateLoanRequest true "Loan admission request"
// @Success 201 {object} dto.LoanResponse "Loan admitted"
// @Failure 400 {object} dto.ErrorResponse "Invalid payload or credit limit exceeded"
// @Failure 404 {object} dto.ErrorResponse "Customer not found"
// @Failure 409 {object} dto.ErrorResponse "Duplicate loan external id"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans [post]
// @Security BearerAuth
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		respondError(w, err)
		return
	}

	created, err := h.service.CreateLoan(r.Context(), req.CustomerExternalID, req.ExternalID, amount, req.ContractVersion)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperrors.ErrCreditLimitExceeded) || errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "Service failed to create loan",
			slog.String("customerExternalID", req.CustomerExternalID), slog.Any("error", err))
		respondError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Loan admitted",
		slog.String("externalID", created.ExternalID),
		slog.String("amount", created.Amount.String()))
	respondJSON(w, http.StatusCreated, dto.NewLoanResponse(created, req.CustomerExternalID))
}

// ListCustomerLoans handles GET /customers/{externalID}/loans
// @Summary List a customer's loans
// @Description Returns every loan the customer has taken, including paid ones.
// @Tags Loans
// @Produce json
// @Param externalID path string true "Customer external ID"
// @Success 200 {array} dto.LoanResponse "Loans listed"
// @Failure 404 {object} dto.ErrorResponse "Customer not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /customers/{externalID}/loans [get]
// @Security BearerAuth
func (h *LoanHandler) ListCustomerLoans(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	if externalID == "" {
		respondError(w, fmt.Errorf("%w: externalID not found in URL path", apperrors.ErrInvalidArgument))
		return
	}

	loans, err := h.service.ListByCustomer(r.Context(), externalID)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "Service failed to list loans", slog.Any("error", err))
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanListResponse(loans, externalID))
}
