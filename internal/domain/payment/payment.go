package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status int16

const (
	StatusCompleted Status = 1
)

// Payment records one allocation request against a customer's open loans.
// A payment and its detail rows are written together and never mutated
// afterwards.
type Payment struct {
	ID          int64
	ExternalID  string
	CustomerID  int64
	TotalAmount decimal.Decimal
	Status      Status
	PaidAt      *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Detail is the slice of a payment applied to one loan. The detail amounts
// of a payment sum exactly to its total amount.
type Detail struct {
	ID        int64
	Amount    decimal.Decimal
	LoanID    int64
	PaymentID int64
	CreatedAt time.Time
	UpdatedAt time.Time
}
