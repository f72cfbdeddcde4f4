package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status int16

// Status codes are inherited from the upstream ledger; 3 was never assigned
// and Paid has always been 4.
const (
	StatusPending Status = 1
	StatusActive  Status = 2
	StatusPaid    Status = 4
)

// The two predicates below intentionally disagree on which status bucket
// counts as debt. Balance reporting sums loans in StatusPending, while the
// admission credit check sums loans in StatusActive. This mirrors the
// upstream ledger exactly; do not unify them without product confirmation.

// IsOutstandingForReporting reports whether a loan's outstanding balance is
// counted in a customer's total debt figure.
func IsOutstandingForReporting(s Status) bool {
	return s == StatusPending
}

// IsActiveForAdmission reports whether a loan's outstanding balance is
// counted against the customer's score when admitting a new loan.
func IsActiveForAdmission(s Status) bool {
	return s == StatusActive
}

type Loan struct {
	ID                 int64
	ExternalID         string
	CustomerID         int64
	Amount             decimal.Decimal
	Outstanding        decimal.Decimal
	Status             Status
	ContractVersion    string
	TakenAt            time.Time
	MaximumPaymentDate time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsPayable reports whether the loan can still absorb payment allocations.
func (l *Loan) IsPayable() bool {
	return l.Outstanding.IsPositive()
}

// Apply consumes up to remaining from the loan's outstanding balance and
// returns the amount actually applied. A loan whose outstanding reaches zero
// flips to Paid and drops out of future allocations.
func (l *Loan) Apply(remaining decimal.Decimal) decimal.Decimal {
	applied := decimal.Min(remaining, l.Outstanding)
	l.Outstanding = l.Outstanding.Sub(applied)
	if l.Outstanding.Sign() <= 0 {
		l.Status = StatusPaid
	}
	return applied
}
