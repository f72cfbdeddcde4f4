package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/loan"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

func (r *LoanRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *LoanRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *LoanRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *LoanRepository) LockCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) error {
	return lockCustomer(ctx, tx, customerID)
}

func (r *LoanRepository) SumOutstandingForAdmissionInTx(ctx context.Context, tx pgx.Tx, customerID int64) (decimal.Decimal, error) {
	query := `
        SELECT COALESCE(SUM(outstanding), 0)
        FROM loans
        WHERE customer_id = $1 AND status = $2`

	var sum decimal.Decimal
	err := tx.QueryRow(ctx, query, customerID, loan.StatusActive).Scan(&sum)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to sum outstanding for admission", "customer_id", customerID, slog.Any("error", err))
		return decimal.Zero, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return sum, nil
}

func (r *LoanRepository) CreateInTx(ctx context.Context, tx pgx.Tx, newLoan *loan.Loan) (*loan.Loan, error) {
	query := `
        INSERT INTO loans (external_id, customer_id, amount, outstanding, status, contract_version, taken_at, maximum_payment_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        RETURNING id, external_id, customer_id, amount, outstanding, status, contract_version, taken_at, maximum_payment_date, created_at, updated_at`

	var created loan.Loan
	err := tx.QueryRow(ctx, query,
		newLoan.ExternalID, newLoan.CustomerID, newLoan.Amount, newLoan.Outstanding,
		newLoan.Status, newLoan.ContractVersion, newLoan.TakenAt, newLoan.MaximumPaymentDate,
	).Scan(
		&created.ID, &created.ExternalID, &created.CustomerID, &created.Amount,
		&created.Outstanding, &created.Status, &created.ContractVersion,
		&created.TakenAt, &created.MaximumPaymentDate, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.WarnContext(ctx, "Loan external id already exists", "external_id", newLoan.ExternalID)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrConflict, err)
		}
		r.logger.ErrorContext(ctx, "Failed to insert loan", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to insert loan: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID, "external_id", created.ExternalID)
	return &created, nil
}

func (r *LoanRepository) GetByExternalID(ctx context.Context, externalID string) (*loan.Loan, error) {
	query := `
        SELECT id, external_id, customer_id, amount, outstanding, status, contract_version, taken_at, maximum_payment_date, created_at, updated_at
        FROM loans
        WHERE external_id = $1`

	status := "success"
	startTime := time.Now()

	var l loan.Loan
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&l.ID, &l.ExternalID, &l.CustomerID, &l.Amount, &l.Outstanding,
		&l.Status, &l.ContractVersion, &l.TakenAt, &l.MaximumPaymentDate,
		&l.CreatedAt, &l.UpdatedAt,
	)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetLoanByExternalID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Loan not found", "external_id", externalID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get loan by external id", "external_id", externalID, slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &l, nil
}

func (r *LoanRepository) ListByCustomerID(ctx context.Context, customerID int64) ([]*loan.Loan, error) {
	query := `
        SELECT id, external_id, customer_id, amount, outstanding, status, contract_version, taken_at, maximum_payment_date, created_at, updated_at
        FROM loans
        WHERE customer_id = $1
        ORDER BY created_at ASC, id ASC`

	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query loans", "customer_id", customerID, slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

func (r *LoanRepository) TotalOutstandingDebt(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	// Reporting bucket, not the admission one. See loan.IsOutstandingForReporting.
	query := `
        SELECT COALESCE(SUM(outstanding), 0)
        FROM loans
        WHERE customer_id = $1 AND status = $2`

	status := "success"
	startTime := time.Now()

	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, query, customerID, loan.StatusPending).Scan(&sum)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("TotalOutstandingDebt", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to sum outstanding debt", "customer_id", customerID, slog.Any("error", err))
		return decimal.Zero, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return sum, nil
}

func (r *LoanRepository) ListPayableInTx(ctx context.Context, tx pgx.Tx, customerID int64) ([]*loan.Loan, error) {
	query := `
        SELECT id, external_id, customer_id, amount, outstanding, status, contract_version, taken_at, maximum_payment_date, created_at, updated_at
        FROM loans
        WHERE customer_id = $1 AND outstanding > 0
        ORDER BY created_at ASC, id ASC
        FOR UPDATE`

	rows, err := tx.Query(ctx, query, customerID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query payable loans", "customer_id", customerID, slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	return scanLoans(rows)
}

func (r *LoanRepository) UpdateAllocationInTx(ctx context.Context, tx pgx.Tx, l *loan.Loan) error {
	query := `
        UPDATE loans
        SET outstanding = $2, status = $3, updated_at = NOW()
        WHERE id = $1`

	cmdTag, err := tx.Exec(ctx, query, l.ID, l.Outstanding, l.Status)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan allocation", "loan_id", l.ID, slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: loan %d not found during allocation", apperrors.ErrNotFound, l.ID)
	}
	return nil
}

func scanLoans(rows pgx.Rows) ([]*loan.Loan, error) {
	loans := make([]*loan.Loan, 0)
	for rows.Next() {
		var l loan.Loan
		err := rows.Scan(
			&l.ID, &l.ExternalID, &l.CustomerID, &l.Amount, &l.Outstanding,
			&l.Status, &l.ContractVersion, &l.TakenAt, &l.MaximumPaymentDate,
			&l.CreatedAt, &l.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed scanning loan row: %w", apperrors.ErrDatabase, err)
		}
		loans = append(loans, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return loans, nil
}

func lockCustomer(ctx context.Context, tx pgx.Tx, customerID int64) error {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM customers WHERE id = $1 FOR UPDATE`, customerID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: customer %d", apperrors.ErrNotFound, customerID)
		}
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}
