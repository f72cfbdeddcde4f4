package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/event"
	"lending-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

type CustomerService interface {
	// CreateCustomer admits a new customer. Status is always Pending at
	// creation regardless of the caller's wishes.
	CreateCustomer(ctx context.Context, externalID string, score decimal.Decimal) (*Customer, error)

	GetCustomerByExternalID(ctx context.Context, externalID string) (*Customer, error)

	// GetBalance returns score, total outstanding debt and the remaining
	// headroom for one customer. AvailableAmount may be negative.
	GetBalance(ctx context.Context, externalID string) (*Balance, error)

	ListBalances(ctx context.Context) ([]*Balance, error)

	ListPending(ctx context.Context) ([]*Customer, error)

	MarkPreapproved(ctx context.Context, customerID int64, at time.Time) error
}

// BalanceCache is an optional read-side cache for balances. Implementations
// must treat a miss as (nil, nil).
type BalanceCache interface {
	GetBalance(ctx context.Context, externalID string) (*Balance, error)
	SetBalance(ctx context.Context, balance *Balance) error
	InvalidateBalance(ctx context.Context, externalID string) error
}

var _ CustomerService = (*customerService)(nil)

type customerService struct {
	repo   Repository
	ledger DebtLedger
	cache  BalanceCache
	pub    event.Publisher
	logger *slog.Logger
}

func NewCustomerService(repo Repository, ledger DebtLedger, cache BalanceCache, pub event.Publisher, logger *slog.Logger) CustomerService {
	if repo == nil {
		panic("customer repository cannot be nil")
	}
	if ledger == nil {
		panic("debt ledger cannot be nil")
	}
	return &customerService{
		repo:   repo,
		ledger: ledger,
		cache:  cache,
		pub:    pub,
		logger: logger.With(slog.String("component", "customerService")),
	}
}

func (s *customerService) CreateCustomer(ctx context.Context, externalID string, score decimal.Decimal) (*Customer, error) {
	s.logger.InfoContext(ctx, "Creating customer", "externalID", externalID)

	if score.IsNegative() {
		return nil, apperrors.NewValidationError("score", "score cannot be negative")
	}

	cust := &Customer{
		ExternalID: externalID,
		Status:     StatusPending,
		Score:      score,
	}

	created, err := s.repo.Create(ctx, cust)
	if err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			s.logger.WarnContext(ctx, "Duplicate customer external id", "externalID", externalID)
			return nil, fmt.Errorf("%w: customer %s already exists", apperrors.ErrConflict, externalID)
		}
		s.logger.ErrorContext(ctx, "Failed to create customer", slog.Any("error", err))
		return nil, err
	}

	s.publish(ctx, func() error {
		return s.pub.PublishCustomerCreated(ctx, event.CustomerCreatedEvent{
			ExternalID: created.ExternalID,
			Score:      created.Score,
			Timestamp:  created.CreatedAt,
		})
	})

	s.logger.InfoContext(ctx, "Customer created", "externalID", created.ExternalID)
	return created, nil
}

func (s *customerService) GetCustomerByExternalID(ctx context.Context, externalID string) (*Customer, error) {
	cust, err := s.repo.GetByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: customer %s", apperrors.ErrNotFound, externalID)
		}
		return nil, err
	}
	return cust, nil
}

func (s *customerService) GetBalance(ctx context.Context, externalID string) (*Balance, error) {
	if s.cache != nil {
		cached, err := s.cache.GetBalance(ctx, externalID)
		if err != nil {
			s.logger.WarnContext(ctx, "Balance cache read failed, falling back to ledger", slog.Any("error", err))
		} else if cached != nil {
			return cached, nil
		}
	}

	cust, err := s.GetCustomerByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}

	balance, err := s.balanceFor(ctx, cust)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, balance); err != nil {
			s.logger.WarnContext(ctx, "Balance cache write failed", slog.Any("error", err))
		}
	}
	return balance, nil
}

func (s *customerService) ListBalances(ctx context.Context) ([]*Balance, error) {
	customers, err := s.repo.List(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list customers", slog.Any("error", err))
		return nil, err
	}

	balances := make([]*Balance, 0, len(customers))
	for _, cust := range customers {
		balance, err := s.balanceFor(ctx, cust)
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

func (s *customerService) ListPending(ctx context.Context) ([]*Customer, error) {
	return s.repo.ListByStatus(ctx, StatusPending)
}

func (s *customerService) MarkPreapproved(ctx context.Context, customerID int64, at time.Time) error {
	if err := s.repo.SetPreapproved(ctx, customerID, at); err != nil {
		s.logger.ErrorContext(ctx, "Failed to mark customer preapproved", "customerID", customerID, slog.Any("error", err))
		return err
	}
	s.logger.InfoContext(ctx, "Customer preapproved", "customerID", customerID)
	return nil
}

func (s *customerService) balanceFor(ctx context.Context, cust *Customer) (*Balance, error) {
	totalDebt, err := s.ledger.TotalOutstandingDebt(ctx, cust.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to compute total debt", "externalID", cust.ExternalID, slog.Any("error", err))
		return nil, err
	}
	return &Balance{
		ExternalID:      cust.ExternalID,
		Score:           cust.Score,
		TotalDebt:       totalDebt,
		AvailableAmount: cust.Score.Sub(totalDebt),
	}, nil
}

func (s *customerService) publish(ctx context.Context, fn func() error) {
	if s.pub == nil {
		return
	}
	if err := fn(); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", slog.Any("error", err))
	}
}
