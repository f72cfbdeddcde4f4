package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/customer"
	"lending-engine/internal/domain/loan"
	"lending-engine/internal/event"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type PaymentService interface {
	// CreatePayment allocates totalAmount across the customer's open
	// loans, oldest loan first. The allocation is all-or-nothing: either
	// the payment, its detail rows and every loan update commit together,
	// or nothing is persisted.
	CreatePayment(ctx context.Context, customerExternalID, externalID string, totalAmount decimal.Decimal) (*Payment, []*Detail, error)

	ListPayments(ctx context.Context) ([]*Payment, error)

	ListDetails(ctx context.Context, paymentID int64) ([]*Detail, error)
}

// BalanceInvalidator drops a customer's cached balance after a ledger write.
type BalanceInvalidator interface {
	InvalidateBalance(ctx context.Context, externalID string) error
}

var _ PaymentService = (*paymentService)(nil)

type paymentService struct {
	repo            Repository
	loans           LoanLedger
	customerService customer.CustomerService
	pub             event.Publisher
	cache           BalanceInvalidator
	logger          *slog.Logger
}

func NewPaymentService(repo Repository, loans LoanLedger, cs customer.CustomerService, pub event.Publisher, cache BalanceInvalidator, logger *slog.Logger) PaymentService {
	if repo == nil {
		panic("payment repository cannot be nil")
	}
	if loans == nil {
		panic("loan ledger cannot be nil")
	}
	if cs == nil {
		panic("customer service cannot be nil")
	}
	return &paymentService{
		repo:            repo,
		loans:           loans,
		customerService: cs,
		pub:             pub,
		cache:           cache,
		logger:          logger.With(slog.String("component", "paymentService")),
	}
}

func (s *paymentService) CreatePayment(ctx context.Context, customerExternalID, externalID string, totalAmount decimal.Decimal) (createdPayment *Payment, details []*Detail, err error) {
	s.logger.InfoContext(ctx, "Creating payment", "customerExternalID", customerExternalID, "totalAmount", totalAmount.String())

	if totalAmount.IsNegative() {
		return nil, nil, apperrors.NewValidationError("totalAmount", "totalAmount cannot be negative")
	}
	if externalID == "" {
		externalID = uuid.NewString()
	}

	cust, err := s.customerService.GetCustomerByExternalID(ctx, customerExternalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Customer not found for payment", "customerExternalID", customerExternalID)
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	loansTouched := 0
	defer func() {
		if err != nil {
			monitoring.RecordPaymentAllocation(allocationStatus(err), 0)
			_ = s.repo.RollbackTx(ctx, tx)
		} else {
			monitoring.RecordPaymentAllocation("success", loansTouched)
		}
	}()

	if err = s.repo.LockCustomerInTx(ctx, tx, cust.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to lock customer row", slog.Any("error", err))
		return nil, nil, fmt.Errorf("%w: could not lock customer: %v", apperrors.ErrInternalServer, err)
	}

	openLoans, err := s.loans.ListPayableInTx(ctx, tx, cust.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list payable loans", slog.Any("error", err))
		return nil, nil, fmt.Errorf("%w: could not list open loans: %v", apperrors.ErrInternalServer, err)
	}

	totalOutstanding := decimal.Zero
	for _, l := range openLoans {
		totalOutstanding = totalOutstanding.Add(l.Outstanding)
	}

	if totalAmount.GreaterThan(totalOutstanding) {
		s.logger.WarnContext(ctx, "Payment rejected, amount exceeds outstanding",
			"customerExternalID", customerExternalID,
			"totalAmount", totalAmount.String(),
			"totalOutstanding", totalOutstanding.String())
		return nil, nil, fmt.Errorf("%w: requested %s > outstanding %s",
			apperrors.ErrAmountExceedsOutstanding, totalAmount, totalOutstanding)
	}

	now := time.Now()
	newPayment := &Payment{
		ExternalID:  externalID,
		CustomerID:  cust.ID,
		TotalAmount: totalAmount,
		Status:      StatusCompleted,
		PaidAt:      &now,
	}

	createdPayment, err = s.repo.CreateInTx(ctx, tx, newPayment)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, nil, fmt.Errorf("%w: payment %s already exists", apperrors.ErrConflict, externalID)
		}
		s.logger.ErrorContext(ctx, "Failed to insert payment", slog.Any("error", err))
		return nil, nil, fmt.Errorf("%w: could not insert payment: %v", apperrors.ErrInternalServer, err)
	}

	details, err = s.allocate(ctx, tx, createdPayment, openLoans, totalAmount)
	if err != nil {
		return nil, nil, err
	}
	loansTouched = len(details)

	if len(details) > 0 {
		if err = s.repo.CreateDetailsInTx(ctx, tx, details); err != nil {
			s.logger.ErrorContext(ctx, "Failed to insert payment details", slog.Any("error", err))
			return nil, nil, fmt.Errorf("%w: could not insert payment details: %v", apperrors.ErrInternalServer, err)
		}
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit payment allocation", slog.Any("error", err))
		return nil, nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrInternalServer, err)
	}

	s.invalidateBalance(ctx, customerExternalID)
	s.publishPaymentCompleted(ctx, createdPayment, customerExternalID, openLoans, details)

	s.logger.InfoContext(ctx, "Payment completed",
		"externalID", createdPayment.ExternalID,
		"totalAmount", createdPayment.TotalAmount.String(),
		"loansTouched", loansTouched)
	return createdPayment, details, nil
}

// allocate walks the open loans oldest first, consuming totalAmount. Loans
// not reached before the amount runs out are left untouched.
func (s *paymentService) allocate(ctx context.Context, tx pgx.Tx, p *Payment, openLoans []*loan.Loan, totalAmount decimal.Decimal) ([]*Detail, error) {
	remaining := totalAmount
	details := make([]*Detail, 0, len(openLoans))

	for _, l := range openLoans {
		if remaining.Sign() <= 0 {
			break
		}

		applied := l.Apply(remaining)
		if err := s.loans.UpdateAllocationInTx(ctx, tx, l); err != nil {
			s.logger.ErrorContext(ctx, "Failed to update loan allocation", "loanID", l.ID, slog.Any("error", err))
			return nil, fmt.Errorf("%w: could not update loan %d: %v", apperrors.ErrInternalServer, l.ID, err)
		}

		details = append(details, &Detail{
			Amount:    applied,
			LoanID:    l.ID,
			PaymentID: p.ID,
		})
		remaining = remaining.Sub(applied)
	}

	return details, nil
}

func (s *paymentService) ListPayments(ctx context.Context) ([]*Payment, error) {
	payments, err := s.repo.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list payments", slog.Any("error", err))
		return nil, err
	}
	return payments, nil
}

func (s *paymentService) ListDetails(ctx context.Context, paymentID int64) ([]*Detail, error) {
	return s.repo.ListDetailsByPaymentID(ctx, paymentID)
}

func (s *paymentService) invalidateBalance(ctx context.Context, customerExternalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateBalance(ctx, customerExternalID); err != nil {
		s.logger.WarnContext(ctx, "Failed to invalidate balance cache", slog.Any("error", err))
	}
}

func (s *paymentService) publishPaymentCompleted(ctx context.Context, p *Payment, customerExternalID string, openLoans []*loan.Loan, details []*Detail) {
	if s.pub == nil {
		return
	}

	byID := make(map[int64]string, len(openLoans))
	for _, l := range openLoans {
		byID[l.ID] = l.ExternalID
	}

	evtDetails := make([]event.PaymentDetailEvent, 0, len(details))
	for _, d := range details {
		evtDetails = append(evtDetails, event.PaymentDetailEvent{
			LoanExternalID: byID[d.LoanID],
			Amount:         d.Amount,
		})
	}

	paidAt := time.Now()
	if p.PaidAt != nil {
		paidAt = *p.PaidAt
	}
	err := s.pub.PublishPaymentCompleted(ctx, event.PaymentCompletedEvent{
		ExternalID:         p.ExternalID,
		CustomerExternalID: customerExternalID,
		TotalAmount:        p.TotalAmount,
		PaidAt:             paidAt,
		Details:            evtDetails,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish payment.completed", slog.Any("error", err))
	}
}

func allocationStatus(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrAmountExceedsOutstanding):
		return "failure_exceeds_outstanding"
	case errors.Is(err, apperrors.ErrConflict):
		return "failure_conflict"
	default:
		return "failure_internal"
	}
}
