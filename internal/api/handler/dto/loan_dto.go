package dto

import (
	"lending-engine/internal/domain/loan"
)

type CreateLoanRequest struct {
	ExternalID         string `json:"externalId" validate:"required,max=60"`
	CustomerExternalID string `json:"customerExternalId" validate:"required,max=60"`
	Amount             string `json:"amount" validate:"required"`
	ContractVersion    string `json:"contractVersion" validate:"omitempty,max=30"`
}

func (r *CreateLoanRequest) Validate() error {
	return validate.Struct(r)
}

type LoanResponse struct {
	ExternalID         string `json:"externalId"`
	Amount             string `json:"amount"`
	Outstanding        string `json:"outstanding"`
	Status             int16  `json:"status"`
	CustomerExternalID string `json:"customerExternalId"`
}

func NewLoanResponse(l *loan.Loan, customerExternalID string) LoanResponse {
	if l == nil {
		return LoanResponse{}
	}
	return LoanResponse{
		ExternalID:         l.ExternalID,
		Amount:             l.Amount.String(),
		Outstanding:        l.Outstanding.String(),
		Status:             int16(l.Status),
		CustomerExternalID: customerExternalID,
	}
}

func NewLoanListResponse(loans []*loan.Loan, customerExternalID string) []LoanResponse {
	resp := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		resp = append(resp, NewLoanResponse(l, customerExternalID))
	}
	return resp
}
