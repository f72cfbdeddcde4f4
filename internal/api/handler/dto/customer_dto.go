package dto

import (
	"time"

	"lending-engine/internal/domain/customer"
)

type CreateCustomerRequest struct {
	ExternalID string `json:"externalId" validate:"required,max=60"`
	Score      string `json:"score" validate:"required"`
}

func (r *CreateCustomerRequest) Validate() error {
	return validate.Struct(r)
}

type CustomerResponse struct {
	ExternalID    string     `json:"externalId"`
	Status        int16      `json:"status"`
	Score         string     `json:"score"`
	PreapprovedAt *time.Time `json:"preapprovedAt,omitempty"`
}

func NewCustomerResponse(cust *customer.Customer) CustomerResponse {
	if cust == nil {
		return CustomerResponse{}
	}
	return CustomerResponse{
		ExternalID:    cust.ExternalID,
		Status:        int16(cust.Status),
		Score:         cust.Score.String(),
		PreapprovedAt: cust.PreapprovedAt,
	}
}

type CustomerBalanceResponse struct {
	ExternalID      string `json:"externalId"`
	Score           string `json:"score"`
	TotalDebt       string `json:"totalDebt"`
	AvailableAmount string `json:"availableAmount"`
}

func NewCustomerBalanceResponse(b *customer.Balance) CustomerBalanceResponse {
	if b == nil {
		return CustomerBalanceResponse{}
	}
	return CustomerBalanceResponse{
		ExternalID:      b.ExternalID,
		Score:           b.Score.String(),
		TotalDebt:       b.TotalDebt.String(),
		AvailableAmount: b.AvailableAmount.String(),
	}
}
