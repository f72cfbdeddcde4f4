package payment

import (
	"context"

	"lending-engine/internal/domain/loan"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error

	// LockCustomerInTx serializes allocations against concurrent writes
	// for the same customer.
	LockCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) error

	CreateInTx(ctx context.Context, tx pgx.Tx, p *Payment) (*Payment, error)

	CreateDetailsInTx(ctx context.Context, tx pgx.Tx, details []*Detail) error

	List(ctx context.Context) ([]*Payment, error)

	ListByCustomerID(ctx context.Context, customerID int64) ([]*Payment, error)

	ListDetailsByPaymentID(ctx context.Context, paymentID int64) ([]*Detail, error)
}

// LoanLedger is the slice of the loan repository the allocator mutates:
// fetching payable loans oldest-first and persisting allocation results,
// inside the allocator's own transaction.
type LoanLedger interface {
	ListPayableInTx(ctx context.Context, tx pgx.Tx, customerID int64) ([]*loan.Loan, error)
	UpdateAllocationInTx(ctx context.Context, tx pgx.Tx, l *loan.Loan) error
}
