package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/domain/payment"
	"lending-engine/internal/pkg/apperrors"
)

type PaymentHandler struct {
	service payment.PaymentService
	logger  *slog.Logger
}

func NewPaymentHandler(s payment.PaymentService, l *slog.Logger) *PaymentHandler {
	if s == nil {
		panic("payment service cannot be nil")
	}
	return &PaymentHandler{
		service: s,
		logger:  l.With("component", "PaymentHandler"),
	}
}

// CreatePayment handles POST /payments
// @Summary Allocate a payment
// @Description Spreads the payment across the customer's open loans, oldest first. The whole amount must fit within the customer's total outstanding debt or the payment is rejected without any writes.
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body dto.CreatePaymentRequest true "Payment allocation request"
// @Success 201 {object} dto.PaymentResponse "Payment allocated"
// @Failure 400 {object} dto.ErrorResponse "Invalid payload or amount exceeds outstanding debt"
// @Failure 404 {object} dto.ErrorResponse "Customer not found"
// @Failure 409 {object} dto.ErrorResponse "Duplicate payment external id"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /payments [post]
// @Security BearerAuth
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode request body", slog.Any("error", err))
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrValidation, err))
		return
	}

	totalAmount, err := parseAmount("totalAmount", req.TotalAmount)
	if err != nil {
		respondError(w, err)
		return
	}

	created, details, err := h.service.CreatePayment(r.Context(), req.CustomerExternalID, req.ExternalID, totalAmount)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, apperrors.ErrAmountExceedsOutstanding) || errors.Is(err, apperrors.ErrNotFound) {
			level = slog.LevelWarn
		}
		h.logger.Log(r.Context(), level, "Service failed to create payment",
			slog.String("customerExternalID", req.CustomerExternalID), slog.Any("error", err))
		respondError(w, err)
		return
	}

	h.logger.InfoContext(r.Context(), "Payment allocated",
		slog.String("externalID", created.ExternalID),
		slog.Int("loansTouched", len(details)))
	respondJSON(w, http.StatusCreated, dto.NewPaymentResponse(created, details))
}

// ListPayments handles GET /payments
// @Summary List payments
// @Description Returns every recorded payment with its allocation details.
// @Tags Payments
// @Produce json
// @Success 200 {array} dto.PaymentResponse "Payments listed"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /payments [get]
// @Security BearerAuth
func (h *PaymentHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Service failed to list payments", slog.Any("error", err))
		respondError(w, err)
		return
	}

	resp := make([]dto.PaymentResponse, 0, len(payments))
	for _, p := range payments {
		details, err := h.service.ListDetails(r.Context(), p.ID)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "Service failed to list payment details", slog.Any("error", err))
			respondError(w, err)
			return
		}
		resp = append(resp, dto.NewPaymentResponse(p, details))
	}
	respondJSON(w, http.StatusOK, resp)
}
