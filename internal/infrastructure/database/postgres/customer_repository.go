package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/customer"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

var errMsgFormat = "%w: %w"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

type CustomerRepository struct {
	db     DBPool
	logger *slog.Logger
}

var _ customer.Repository = (*CustomerRepository)(nil)

func NewCustomerRepository(db DBPool, logger *slog.Logger) *CustomerRepository {
	return &CustomerRepository{db: db, logger: logger.With("component", "CustomerRepository")}
}

func (r *CustomerRepository) Create(ctx context.Context, cust *customer.Customer) (*customer.Customer, error) {
	query := `
        INSERT INTO customers (external_id, status, score, preapproved_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING id, external_id, status, score, preapproved_at, created_at, updated_at`

	var created customer.Customer
	err := r.db.QueryRow(ctx, query, cust.ExternalID, cust.Status, cust.Score, cust.PreapprovedAt).Scan(
		&created.ID, &created.ExternalID, &created.Status, &created.Score,
		&created.PreapprovedAt, &created.CreatedAt, &created.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			r.logger.WarnContext(ctx, "Customer external id already exists", "external_id", cust.ExternalID)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrConflict, err)
		}
		r.logger.ErrorContext(ctx, "Failed to insert customer", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to insert customer: %w", apperrors.ErrDatabase, err)
	}

	r.logger.InfoContext(ctx, "Customer created in DB", "customer_id", created.ID, "external_id", created.ExternalID)
	return &created, nil
}

func (r *CustomerRepository) GetByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	query := `
        SELECT id, external_id, status, score, preapproved_at, created_at, updated_at
        FROM customers
        WHERE external_id = $1`

	status := "success"
	startTime := time.Now()

	var cust customer.Customer
	err := r.db.QueryRow(ctx, query, externalID).Scan(
		&cust.ID, &cust.ExternalID, &cust.Status, &cust.Score,
		&cust.PreapprovedAt, &cust.CreatedAt, &cust.UpdatedAt,
	)

	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetCustomerByExternalID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Customer not found", "external_id", externalID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get customer by external id", "external_id", externalID, slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &cust, nil
}

func (r *CustomerRepository) List(ctx context.Context) ([]*customer.Customer, error) {
	query := `
        SELECT id, external_id, status, score, preapproved_at, created_at, updated_at
        FROM customers
        ORDER BY id ASC`

	return r.queryCustomers(ctx, query)
}

func (r *CustomerRepository) ListByStatus(ctx context.Context, status customer.Status) ([]*customer.Customer, error) {
	query := `
        SELECT id, external_id, status, score, preapproved_at, created_at, updated_at
        FROM customers
        WHERE status = $1
        ORDER BY id ASC`

	return r.queryCustomers(ctx, query, status)
}

func (r *CustomerRepository) SetPreapproved(ctx context.Context, customerID int64, at time.Time) error {
	query := `
        UPDATE customers
        SET preapproved_at = $2, updated_at = NOW()
        WHERE id = $1 AND preapproved_at IS NULL`

	cmdTag, err := r.db.Exec(ctx, query, customerID, at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to set preapproved_at", "customer_id", customerID, slog.Any("error", err))
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: customer %d not found or already preapproved", apperrors.ErrNotFound, customerID)
	}
	return nil
}

func (r *CustomerRepository) queryCustomers(ctx context.Context, query string, args ...any) ([]*customer.Customer, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query customers", slog.Any("error", err))
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	customers := make([]*customer.Customer, 0)
	for rows.Next() {
		var cust customer.Customer
		err := rows.Scan(
			&cust.ID, &cust.ExternalID, &cust.Status, &cust.Score,
			&cust.PreapprovedAt, &cust.CreatedAt, &cust.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%w: failed scanning customer row: %w", apperrors.ErrDatabase, err)
		}
		customers = append(customers, &cust)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return customers, nil
}
