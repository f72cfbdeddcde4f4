package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/customer"
	"lending-engine/internal/event"
	"lending-engine/internal/infrastructure/monitoring"
	"lending-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type LoanService interface {
	// CreateLoan admits a new loan for a customer identified by external
	// id. Admission fails when the sum of the customer's active
	// outstanding balances plus the requested amount would exceed the
	// score; a sum exactly equal to the score is accepted.
	CreateLoan(ctx context.Context, customerExternalID, externalID string, amount decimal.Decimal, contractVersion string) (*Loan, error)

	// ListByCustomer returns every loan owned by the customer, whatever
	// its status.
	ListByCustomer(ctx context.Context, customerExternalID string) ([]*Loan, error)
}

// BalanceInvalidator drops a customer's cached balance after a ledger write.
type BalanceInvalidator interface {
	InvalidateBalance(ctx context.Context, externalID string) error
}

type ServiceConfig struct {
	DefaultContractVersion string
	MaxPaymentTermDays     int
}

var _ LoanService = (*loanService)(nil)

type loanService struct {
	repo            Repository
	customerService customer.CustomerService
	pub             event.Publisher
	cache           BalanceInvalidator
	cfg             ServiceConfig
	logger          *slog.Logger
}

func NewLoanService(repo Repository, cs customer.CustomerService, pub event.Publisher, cache BalanceInvalidator, cfg ServiceConfig, logger *slog.Logger) LoanService {
	if repo == nil {
		panic("loan repository cannot be nil")
	}
	if cs == nil {
		panic("customer service cannot be nil")
	}
	if cfg.DefaultContractVersion == "" {
		cfg.DefaultContractVersion = "v1"
	}
	if cfg.MaxPaymentTermDays <= 0 {
		cfg.MaxPaymentTermDays = 365
	}
	return &loanService{
		repo:            repo,
		customerService: cs,
		pub:             pub,
		cache:           cache,
		cfg:             cfg,
		logger:          logger.With(slog.String("component", "loanService")),
	}
}

func (s *loanService) CreateLoan(ctx context.Context, customerExternalID, externalID string, amount decimal.Decimal, contractVersion string) (createdLoan *Loan, err error) {
	s.logger.InfoContext(ctx, "Creating loan", "customerExternalID", customerExternalID, "externalID", externalID)

	if !amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "amount must be greater than zero")
	}
	if contractVersion == "" {
		contractVersion = s.cfg.DefaultContractVersion
	}

	cust, err := s.customerService.GetCustomerByExternalID(ctx, customerExternalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "Customer not found for loan admission", "customerExternalID", customerExternalID)
			return nil, err
		}
		s.logger.ErrorContext(ctx, "Failed to resolve customer", slog.Any("error", err))
		return nil, fmt.Errorf("failed to resolve customer: %w", err)
	}

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrInternalServer, err)
	}

	defer func() {
		if err != nil {
			monitoring.RecordLoanAdmission(admissionStatus(err))
			_ = s.repo.RollbackTx(ctx, tx)
		}
	}()

	if err = s.repo.LockCustomerInTx(ctx, tx, cust.ID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to lock customer row", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not lock customer: %v", apperrors.ErrInternalServer, err)
	}

	activeOutstanding, err := s.repo.SumOutstandingForAdmissionInTx(ctx, tx, cust.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to sum active outstanding", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not sum outstanding loans: %v", apperrors.ErrInternalServer, err)
	}

	if activeOutstanding.Add(amount).GreaterThan(cust.Score) {
		s.logger.WarnContext(ctx, "Loan admission rejected, credit limit exceeded",
			"customerExternalID", customerExternalID,
			"activeOutstanding", activeOutstanding.String(),
			"requested", amount.String(),
			"score", cust.Score.String())
		return nil, fmt.Errorf("%w: outstanding %s + requested %s > score %s",
			apperrors.ErrCreditLimitExceeded, activeOutstanding, amount, cust.Score)
	}

	now := time.Now()
	newLoan := &Loan{
		ExternalID:         externalID,
		CustomerID:         cust.ID,
		Amount:             amount,
		Outstanding:        amount,
		Status:             StatusActive,
		ContractVersion:    contractVersion,
		TakenAt:            now,
		MaximumPaymentDate: now.AddDate(0, 0, s.cfg.MaxPaymentTermDays),
	}

	createdLoan, err = s.repo.CreateInTx(ctx, tx, newLoan)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.logger.WarnContext(ctx, "Duplicate loan external id", "externalID", externalID)
			return nil, fmt.Errorf("%w: loan %s already exists", apperrors.ErrConflict, externalID)
		}
		s.logger.ErrorContext(ctx, "Failed to insert loan", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not insert loan: %v", apperrors.ErrInternalServer, err)
	}

	if err = s.repo.CommitTx(ctx, tx); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit loan admission", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not commit transaction: %v", apperrors.ErrInternalServer, err)
	}
	monitoring.RecordLoanAdmission("success")

	s.invalidateBalance(ctx, customerExternalID)
	s.publishLoanCreated(ctx, createdLoan, customerExternalID)

	s.logger.InfoContext(ctx, "Loan created", "externalID", createdLoan.ExternalID, "amount", createdLoan.Amount.String())
	return createdLoan, nil
}

func (s *loanService) ListByCustomer(ctx context.Context, customerExternalID string) ([]*Loan, error) {
	cust, err := s.customerService.GetCustomerByExternalID(ctx, customerExternalID)
	if err != nil {
		return nil, err
	}

	loans, err := s.repo.ListByCustomerID(ctx, cust.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list loans", "customerExternalID", customerExternalID, slog.Any("error", err))
		return nil, err
	}
	return loans, nil
}

func (s *loanService) invalidateBalance(ctx context.Context, customerExternalID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateBalance(ctx, customerExternalID); err != nil {
		s.logger.WarnContext(ctx, "Failed to invalidate balance cache", slog.Any("error", err))
	}
}

func (s *loanService) publishLoanCreated(ctx context.Context, l *Loan, customerExternalID string) {
	if s.pub == nil {
		return
	}
	err := s.pub.PublishLoanCreated(ctx, event.LoanCreatedEvent{
		ExternalID:         l.ExternalID,
		CustomerExternalID: customerExternalID,
		Amount:             l.Amount,
		TakenAt:            l.TakenAt,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish loan.created", slog.Any("error", err))
	}
}

func admissionStatus(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrCreditLimitExceeded):
		return "failure_credit_limit"
	case errors.Is(err, apperrors.ErrConflict):
		return "failure_conflict"
	default:
		return "failure_internal"
	}
}
