package dto

import (
	"time"

	"lending-engine/internal/domain/payment"
)

type CreatePaymentRequest struct {
	// ExternalID is optional; one is generated when empty.
	ExternalID         string `json:"externalId" validate:"omitempty,max=60"`
	CustomerExternalID string `json:"customerExternalId" validate:"required,max=60"`
	TotalAmount        string `json:"totalAmount" validate:"required"`
}

func (r *CreatePaymentRequest) Validate() error {
	return validate.Struct(r)
}

type PaymentDetailResponse struct {
	LoanID int64  `json:"loanId"`
	Amount string `json:"amount"`
}

type PaymentResponse struct {
	ExternalID  string                  `json:"externalId"`
	TotalAmount string                  `json:"totalAmount"`
	Status      int16                   `json:"status"`
	PaidAt      *time.Time              `json:"paidAt,omitempty"`
	Details     []PaymentDetailResponse `json:"details,omitempty"`
}

func NewPaymentResponse(p *payment.Payment, details []*payment.Detail) PaymentResponse {
	if p == nil {
		return PaymentResponse{}
	}

	detailResp := make([]PaymentDetailResponse, 0, len(details))
	for _, d := range details {
		detailResp = append(detailResp, PaymentDetailResponse{
			LoanID: d.LoanID,
			Amount: d.Amount.String(),
		})
	}

	return PaymentResponse{
		ExternalID:  p.ExternalID,
		TotalAmount: p.TotalAmount.String(),
		Status:      int16(p.Status),
		PaidAt:      p.PaidAt,
		Details:     detailResp,
	}
}
