package customer

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status int16

const (
	StatusPending  Status = 1
	StatusActive   Status = 2
	StatusInactive Status = 3
)

// Customer owns a credit score that acts as the ceiling for the sum of its
// outstanding loans. The score never changes through ledger operations.
type Customer struct {
	ID            int64
	ExternalID    string
	Status        Status
	Score         decimal.Decimal
	PreapprovedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Balance is the reporting view of a customer: the raw score plus the
// ledger-derived debt figures.
type Balance struct {
	ExternalID      string
	Score           decimal.Decimal
	TotalDebt       decimal.Decimal
	AvailableAmount decimal.Decimal
}

func (c *Customer) IsPreapproved() bool {
	return c.PreapprovedAt != nil
}
