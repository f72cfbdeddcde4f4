package customer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, cust *Customer) (*Customer, error)

	GetByExternalID(ctx context.Context, externalID string) (*Customer, error)

	List(ctx context.Context) ([]*Customer, error)

	ListByStatus(ctx context.Context, status Status) ([]*Customer, error)

	SetPreapproved(ctx context.Context, customerID int64, at time.Time) error
}

// DebtLedger is the read-only ledger query the customer side depends on.
// Implemented by the loan repository; the summed statuses are the loan
// package's reporting predicate, not the admission one.
type DebtLedger interface {
	TotalOutstandingDebt(ctx context.Context, customerID int64) (decimal.Decimal, error)
}
