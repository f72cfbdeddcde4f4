package batch

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"lending-engine/internal/domain/customer"
	"lending-engine/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

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

func TestPreapprovalJobRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should preapprove pending customers with credit headroom", func(t *testing.T) {
		mockSvc := new(MockCustomerService)
		job := NewPreapprovalJob(mockSvc, nil, logger)

		pending := []*customer.Customer{
			{ID: 1, ExternalID: "cust-1", Status: customer.StatusPending},
			{ID: 2, ExternalID: "cust-2", Status: customer.StatusPending},
		}
		mockSvc.On("ListPending", ctx).Return(pending, nil)
		mockSvc.On("GetBalance", ctx, "cust-1").Return(&customer.Balance{AvailableAmount: decimal.NewFromInt(500)}, nil)
		mockSvc.On("GetBalance", ctx, "cust-2").Return(&customer.Balance{AvailableAmount: decimal.Zero}, nil)
		mockSvc.On("MarkPreapproved", ctx, int64(1), mock.Anything).Return(nil)

		err := job.Run(ctx)

		assert.NoError(t, err)
		mockSvc.AssertNotCalled(t, "MarkPreapproved", ctx, int64(2), mock.Anything)
		mockSvc.AssertExpectations(t)
	})

	t.Run("should skip customers already stamped", func(t *testing.T) {
		mockSvc := new(MockCustomerService)
		job := NewPreapprovalJob(mockSvc, nil, logger)

		stamped := time.Now()
		pending := []*customer.Customer{
			{ID: 1, ExternalID: "cust-1", Status: customer.StatusPending, PreapprovedAt: &stamped},
		}
		mockSvc.On("ListPending", ctx).Return(pending, nil)

		err := job.Run(ctx)

		assert.NoError(t, err)
		mockSvc.AssertNotCalled(t, "GetBalance", mock.Anything, mock.Anything)
		mockSvc.AssertNotCalled(t, "MarkPreapproved", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("should abort when pending customers cannot be listed", func(t *testing.T) {
		mockSvc := new(MockCustomerService)
		job := NewPreapprovalJob(mockSvc, nil, logger)

		mockSvc.On("ListPending", ctx).Return(nil, assert.AnError)

		err := job.Run(ctx)

		assert.Error(t, err)
	})

	t.Run("should tolerate a customer vanishing mid-scan", func(t *testing.T) {
		mockSvc := new(MockCustomerService)
		job := NewPreapprovalJob(mockSvc, nil, logger)

		pending := []*customer.Customer{
			{ID: 1, ExternalID: "cust-1", Status: customer.StatusPending},
			{ID: 2, ExternalID: "cust-2", Status: customer.StatusPending},
		}
		mockSvc.On("ListPending", ctx).Return(pending, nil)
		mockSvc.On("GetBalance", ctx, "cust-1").Return(nil, apperrors.ErrNotFound)
		mockSvc.On("GetBalance", ctx, "cust-2").Return(&customer.Balance{AvailableAmount: decimal.NewFromInt(10)}, nil)
		mockSvc.On("MarkPreapproved", ctx, int64(2), mock.Anything).Return(nil)

		err := job.Run(ctx)

		assert.NoError(t, err)
		mockSvc.AssertExpectations(t)
	})

	t.Run("should report errors in the summary", func(t *testing.T) {
		mockSvc := new(MockCustomerService)
		job := NewPreapprovalJob(mockSvc, nil, logger)

		pending := []*customer.Customer{
			{ID: 1, ExternalID: "cust-1", Status: customer.StatusPending},
		}
		mockSvc.On("ListPending", ctx).Return(pending, nil)
		mockSvc.On("GetBalance", ctx, "cust-1").Return(nil, assert.AnError)

		err := job.Run(ctx)

		assert.Error(t, err)
	})
}
