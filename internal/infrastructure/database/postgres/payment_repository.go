package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"lending-engine/internal/domain/payment"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

type PaymentRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ payment.Repository = (*PaymentRepository)(nil)

func NewPaymentRepository(db DBPool, logger *slog.Logger) *PaymentRepository {
	return &PaymentRepository{db: db, logger: logger.With("component", "PaymentRepository")}
}

func (r *PaymentRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *PaymentRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *PaymentRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *PaymentRepository) LockCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) error {
	return lockCustomer(ctx, tx, customerID)
}

func (r *PaymentRepository) CreateInTx(ctx context.Context, tx pgx.Tx, p *payment.Payment) (*payment.Payment, error) {
	query := `
        INSERT INTO payments (external_id, customer_id, total_amount, status, paid_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING id, external_id, customer_id, total_amount, status, paid_at, created_at, updated_at`

	var created payment.Payment
	err := tx.QueryRow(ctx, query,
		p.ExternalID, p.CustomerID, p.TotalAmount, p.Status, p.PaidAt,
	).Scan(
		&created.ID, &created.ExternalID, &created.CustomerID, &created.TotalAmount,
		&created.Status, &created.PaidAt, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.WarnContext(ctx, "Payment external id already exists", "external_id", p.ExternalID)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrConflict, err)
		}
		r.logger.ErrorContext(ctx, "Failed to insert payment", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to insert payment: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Payment created in DB", "payment_id", created.ID, "external_id", created.ExternalID)
	return &created, nil
}

func (r *PaymentRepository) CreateDetailsInTx(ctx context.Context, tx pgx.Tx, details []*payment.Detail) error {
	query := `
        INSERT INTO payment_details (amount, loan_id, payment_id, created_at, updated_at)
        VALUES ($1, $2, $3, NOW(), NOW())`

	batch := &pgx.Batch{}
	for _, d := range details {
		batch.Queue(query, d.Amount, d.LoanID, d.PaymentID)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range details {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.logger.ErrorContext(ctx, "Failed executing payment detail batch insert", "entry_index", i, slog.Any("error", err))
			return fmt.Errorf("%w: failed inserting payment detail %d: %w", apperrors.ErrDatabase, i+1, err)
		}
	}
	if err := results.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed closing payment detail batch results", slog.Any("error", err))
		return fmt.Errorf("%w: closing batch results failed: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Payment details created in DB", "num_entries", len(details))
	return nil
}

func (r *PaymentRepository) List(ctx context.Context) ([]*payment.Payment, error) {
	query := `
        SELECT id, external_id, customer_id, total_amount, status, paid_at, created_at, updated_at
        FROM payments
        ORDER BY created_at ASC, id ASC`

	return r.queryPayments(ctx, query)
}

func (r *PaymentRepository) ListByCustomerID(ctx context.Context, customerID int64) ([]*payment.Payment, error) {
	query := `
        SELECT id, external_id, customer_id, total_amount, status, paid_at, created_at, updated_at
        FROM payments
        WHERE customer_id = $1
        ORDER BY created_at ASC, id ASC`

	return r.queryPayments(ctx, query, customerID)
}

func (r *PaymentRepository) ListDetailsByPaymentID(ctx context.Context, paymentID int64) ([]*payment.Detail, error) {
	query := `
        SELECT id, amount, loan_id, payment_id, created_at, updated_at
        FROM payment_details
        WHERE payment_id = $1
        ORDER BY id ASC`

	rows, err := r.db.Query(ctx, query, paymentID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query payment details", "payment_id", paymentID, slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	details := make([]*payment.Detail, 0)
	for rows.Next() {
		var d payment.Detail
		err := rows.Scan(&d.ID, &d.Amount, &d.LoanID, &d.PaymentID, &d.CreatedAt, &d.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: failed scanning payment detail row: %w", apperrors.ErrDatabase, err)
		}
		details = append(details, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return details, nil
}

func (r *PaymentRepository) queryPayments(ctx context.Context, query string, args ...any) ([]*payment.Payment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query payments", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	payments := make([]*payment.Payment, 0)
	for rows.Next() {
		var p payment.Payment
		err := rows.Scan(
			&p.ID, &p.ExternalID, &p.CustomerID, &p.TotalAmount,
			&p.Status, &p.PaidAt, &p.CreatedAt, &p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed scanning payment row: %w", apperrors.ErrDatabase, err)
		}
		payments = append(payments, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return payments, nil
}
