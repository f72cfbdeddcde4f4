package loan

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error

	// LockCustomerInTx takes a row lock on the owning customer so that
	// concurrent admissions and allocations for the same customer
	// serialize (single-writer-per-customer discipline).
	LockCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) error

	// SumOutstandingForAdmissionInTx sums outstanding over the customer's
	// loans in the admission status bucket (StatusActive).
	SumOutstandingForAdmissionInTx(ctx context.Context, tx pgx.Tx, customerID int64) (decimal.Decimal, error)

	CreateInTx(ctx context.Context, tx pgx.Tx, newLoan *Loan) (*Loan, error)

	GetByExternalID(ctx context.Context, externalID string) (*Loan, error)

	ListByCustomerID(ctx context.Context, customerID int64) ([]*Loan, error)

	// TotalOutstandingDebt sums outstanding over the customer's loans in
	// the reporting status bucket (StatusPending). Zero, not an error,
	// when the customer has no such loans.
	TotalOutstandingDebt(ctx context.Context, customerID int64) (decimal.Decimal, error)

	// ListPayableInTx returns the customer's loans with outstanding > 0
	// ordered oldest first (created_at, tie-broken by id).
	ListPayableInTx(ctx context.Context, tx pgx.Tx, customerID int64) ([]*Loan, error)

	// UpdateAllocationInTx persists the outstanding balance and status of
	// a loan touched by a payment allocation.
	UpdateAllocationInTx(ctx context.Context, tx pgx.Tx, l *Loan) error
}
