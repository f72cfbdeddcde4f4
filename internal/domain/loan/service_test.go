package loan

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"lending-engine/internal/domain/customer"
	"lending-engine/internal/event"
	"lending-engine/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

type TxMock struct {
	pgx.Tx
}

type MockRepository struct {
	mock.Mock
}

func (_m *MockRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	ret := _m.Called(ctx)

	var r0 pgx.Tx
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(pgx.Tx)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	return _m.Called(ctx, tx).Error(0)
}

func (_m *MockRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	return _m.Called(ctx, tx).Error(0)
}

func (_m *MockRepository) LockCustomerInTx(ctx context.Context, tx pgx.Tx, customerID int64) error {
	return _m.Called(ctx, tx, customerID).Error(0)
}

func (_m *MockRepository) SumOutstandingForAdmissionInTx(ctx context.Context, tx pgx.Tx, customerID int64) (decimal.Decimal, error) {
	ret := _m.Called(ctx, tx, customerID)
	return ret.Get(0).(decimal.Decimal), ret.Error(1)
}

func (_m *MockRepository) CreateInTx(ctx context.Context, tx pgx.Tx, newLoan *Loan) (*Loan, error) {
	ret := _m.Called(ctx, tx, newLoan)

	var r0 *Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) GetByExternalID(ctx context.Context, externalID string) (*Loan, error) {
	ret := _m.Called(ctx, externalID)

	var r0 *Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) ListByCustomerID(ctx context.Context, customerID int64) ([]*Loan, error) {
	ret := _m.Called(ctx, customerID)

	var r0 []*Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) TotalOutstandingDebt(ctx context.Context, customerID int64) (decimal.Decimal, error) {
	ret := _m.Called(ctx, customerID)
	return ret.Get(0).(decimal.Decimal), ret.Error(1)
}

func (_m *MockRepository) ListPayableInTx(ctx context.Context, tx pgx.Tx, customerID int64) ([]*Loan, error) {
	ret := _m.Called(ctx, tx, customerID)

	var r0 []*Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) UpdateAllocationInTx(ctx context.Context, tx pgx.Tx, l *Loan) error {
	return _m.Called(ctx, tx, l).Error(0)
}

type MockCustomerService struct {
	mock.Mock
}

func (_m *MockCustomerService) CreateCustomer(ctx context.Context, externalID string, score decimal.Decimal) (*customer.Customer, error) {
	ret := _m.Called(ctx, externalID, score)

	var r0 *customer.Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*customer.Customer)
	}
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) GetCustomerByExternalID(ctx context.Context, externalID string) (*customer.Customer, error) {
	ret := _m.Called(ctx, externalID)

	var r0 *customer.Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*customer.Customer)
	}
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) GetBalance(ctx context.Context, externalID string) (*customer.Balance, error) {
	ret := _m.Called(ctx, externalID)

	var r0 *customer.Balance
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*customer.Balance)
	}
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) ListBalances(ctx context.Context) ([]*customer.Balance, error) {
	ret := _m.Called(ctx)

	var r0 []*customer.Balance
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*customer.Balance)
	}
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) ListPending(ctx context.Context) ([]*customer.Customer, error) {
	ret := _m.Called(ctx)

	var r0 []*customer.Customer
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*customer.Customer)
	}
	return r0, ret.Error(1)
}

func (_m *MockCustomerService) MarkPreapproved(ctx context.Context, customerID int64, at time.Time) error {
	return _m.Called(ctx, customerID, at).Error(0)
}

func newTestService(repo Repository, cs customer.CustomerService) LoanService {
	return NewLoanService(repo, cs, event.NoopPublisher{}, nil, ServiceConfig{
		DefaultContractVersion: "v1",
		MaxPaymentTermDays:     365,
	}, logger)
}

func TestCreateLoan(t *testing.T) {
	ctx := context.Background()
	cust := &customer.Customer{ID: 7, ExternalID: "cust-1", Score: decimal.NewFromInt(1000)}

	t.Run("should admit a loan within the credit limit", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)
		tx := &TxMock{}

		mockCustomerService.On("GetCustomerByExternalID", ctx, "cust-1").Return(cust, nil)
		mockRepo.On("BeginTx", ctx).Return(tx, nil)
		mockRepo.On("LockCustomerInTx", ctx, tx, cust.ID).Return(nil)
		mockRepo.On("SumOutstandingForAdmissionInTx", ctx, tx, cust.ID).Return(decimal.NewFromInt(300), nil)
		mockRepo.On("CreateInTx", ctx, tx, mock.Anything).Return(&Loan{ExternalID: "loan-1", CustomerID: cust.ID, Amount: decimal.NewFromInt(500)}, nil)
		mockRepo.On("CommitTx", ctx, tx).Return(nil)

		result, err := service.CreateLoan(ctx, "cust-1", "loan-1", decimal.NewFromInt(500), "")

		assert.NoError(t, err)
		assert.Equal(t, "loan-1", result.ExternalID)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should admit when outstanding plus amount equals the score exactly", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)
		tx := &TxMock{}

		mockCustomerService.On("GetCustomerByExternalID", ctx, "cust-1").Return(cust, nil)
		mockRepo.On("BeginTx", ctx).Return(tx, nil)
		mockRepo.On("LockCustomerInTx", ctx, tx, cust.ID).Return(nil)
		mockRepo.On("SumOutstandingForAdmissionInTx", ctx, tx, cust.ID).Return(decimal.NewFromInt(600), nil)
		mockRepo.On("CreateInTx", ctx, tx, mock.Anything).Return(&Loan{ExternalID: "loan-2"}, nil)
		mockRepo.On("CommitTx", ctx, tx).Return(nil)

		_, err := service.CreateLoan(ctx, "cust-1", "loan-2", decimal.NewFromInt(400), "")

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should reject when outstanding plus amount exceeds the score", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)
		tx := &TxMock{}

		mockCustomerService.On("GetCustomerByExternalID", ctx, "cust-1").Return(cust, nil)
		mockRepo.On("BeginTx", ctx).Return(tx, nil)
		mockRepo.On("LockCustomerInTx", ctx, tx, cust.ID).Return(nil)
		mockRepo.On("SumOutstandingForAdmissionInTx", ctx, tx, cust.ID).Return(decimal.NewFromInt(601), nil)
		mockRepo.On("RollbackTx", ctx, tx).Return(nil)

		result, err := service.CreateLoan(ctx, "cust-1", "loan-3", decimal.NewFromInt(400), "")

		assert.ErrorIs(t, err, apperrors.ErrCreditLimitExceeded)
		assert.Nil(t, result)
		mockRepo.AssertNotCalled(t, "CreateInTx", mock.Anything, mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should reject a non-positive amount before touching the repository", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)

		_, err := service.CreateLoan(ctx, "cust-1", "loan-4", decimal.Zero, "")

		var validationErr *apperrors.ValidationError
		assert.ErrorAs(t, err, &validationErr)
		mockRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
	})

	t.Run("should propagate customer not found", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)

		mockCustomerService.On("GetCustomerByExternalID", ctx, "ghost").Return(nil, apperrors.ErrNotFound)

		_, err := service.CreateLoan(ctx, "ghost", "loan-5", decimal.NewFromInt(100), "")

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
		mockRepo.AssertNotCalled(t, "BeginTx", mock.Anything)
	})

	t.Run("should surface a duplicate external id as a conflict", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)
		tx := &TxMock{}

		mockCustomerService.On("GetCustomerByExternalID", ctx, "cust-1").Return(cust, nil)
		mockRepo.On("BeginTx", ctx).Return(tx, nil)
		mockRepo.On("LockCustomerInTx", ctx, tx, cust.ID).Return(nil)
		mockRepo.On("SumOutstandingForAdmissionInTx", ctx, tx, cust.ID).Return(decimal.Zero, nil)
		mockRepo.On("CreateInTx", ctx, tx, mock.Anything).Return(nil, apperrors.ErrConflict)
		mockRepo.On("RollbackTx", ctx, tx).Return(nil)

		_, err := service.CreateLoan(ctx, "cust-1", "loan-1", decimal.NewFromInt(10), "")

		assert.ErrorIs(t, err, apperrors.ErrConflict)
		mockRepo.AssertNotCalled(t, "CommitTx", mock.Anything, mock.Anything)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should fall back to the configured contract version", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)
		tx := &TxMock{}

		mockCustomerService.On("GetCustomerByExternalID", ctx, "cust-1").Return(cust, nil)
		mockRepo.On("BeginTx", ctx).Return(tx, nil)
		mockRepo.On("LockCustomerInTx", ctx, tx, cust.ID).Return(nil)
		mockRepo.On("SumOutstandingForAdmissionInTx", ctx, tx, cust.ID).Return(decimal.Zero, nil)
		mockRepo.On("CreateInTx", ctx, tx, mock.MatchedBy(func(l *Loan) bool {
			return l.ContractVersion == "v1" && l.Outstanding.Equal(l.Amount) && l.Status == StatusActive
		})).Return(&Loan{ExternalID: "loan-6"}, nil)
		mockRepo.On("CommitTx", ctx, tx).Return(nil)

		_, err := service.CreateLoan(ctx, "cust-1", "loan-6", decimal.NewFromInt(50), "")

		assert.NoError(t, err)
		mockRepo.AssertExpectations(t)
	})
}

func TestListByCustomer(t *testing.T) {
	ctx := context.Background()
	cust := &customer.Customer{ID: 7, ExternalID: "cust-1", Score: decimal.NewFromInt(1000)}

	t.Run("should return every loan for the customer", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)

		loans := []*Loan{{ExternalID: "loan-1"}, {ExternalID: "loan-2", Status: StatusPaid}}
		mockCustomerService.On("GetCustomerByExternalID", ctx, "cust-1").Return(cust, nil)
		mockRepo.On("ListByCustomerID", ctx, cust.ID).Return(loans, nil)

		result, err := service.ListByCustomer(ctx, "cust-1")

		assert.NoError(t, err)
		assert.Len(t, result, 2)
		mockRepo.AssertExpectations(t)
	})

	t.Run("should propagate customer not found", func(t *testing.T) {
		mockRepo := new(MockRepository)
		mockCustomerService := new(MockCustomerService)
		service := newTestService(mockRepo, mockCustomerService)

		mockCustomerService.On("GetCustomerByExternalID", ctx, "ghost").Return(nil, apperrors.ErrNotFound)

		_, err := service.ListByCustomer(ctx, "ghost")

		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}
