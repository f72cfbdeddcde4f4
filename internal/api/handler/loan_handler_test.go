package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"lending-engine/internal/api/handler"
	"lending-engine/internal/api/handler/dto"
	"lending-engine/internal/domain/loan"
	"lending-engine/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockLoanService struct {
	mock.Mock
}

func (_m *MockLoanService) CreateLoan(ctx context.Context, customerExternalID, externalID string, amount decimal.Decimal, contractVersion string) (*loan.Loan, error) {
	ret := _m.Called(ctx, customerExternalID, externalID, amount, contractVersion)

	var r0 *loan.Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*loan.Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockLoanService) ListByCustomer(ctx context.Context, customerExternalID string) ([]*loan.Loan, error) {
	ret := _m.Called(ctx, customerExternalID)

	var r0 []*loan.Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*loan.Loan)
	}
	return r0, ret.Error(1)
}

func TestCreateLoanHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	t.Run("success", func(t *testing.T) {
		mockService := new(MockLoanService)
		h := handler.NewLoanHandler(mockService, logger)

		body := `{"externalId":"loan-1","customerExternalId":"cust-1","amount":"500"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		created := &loan.Loan{
			ExternalID:  "loan-1",
			Amount:      decimal.NewFromInt(500),
			Outstanding: decimal.NewFromInt(500),
			Status:      loan.StatusActive,
		}
		mockService.On("CreateLoan", mock.Anything, "cust-1", "loan-1", mock.Anything, "").Return(created, nil)

		h.CreateLoan(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp dto.LoanResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "loan-1", resp.ExternalID)
		assert.Equal(t, "500", resp.Outstanding)
		mockService.AssertExpectations(t)
	})

	t.Run("credit limit exceeded", func(t *testing.T) {
		mockService := new(MockLoanService)
		h := handler.NewLoanHandler(mockService, logger)

		body := `{"externalId":"loan-2","customerExternalId":"cust-1","amount":"9000"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		mockService.On("CreateLoan", mock.Anything, "cust-1", "loan-2", mock.Anything, "").Return(nil, apperrors.ErrCreditLimitExceeded)

		h.CreateLoan(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		var resp dto.ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error.Message, "credit score")
	})

	t.Run("customer not found", func(t *testing.T) {
		mockService := new(MockLoanService)
		h := handler.NewLoanHandler(mockService, logger)

		body := `{"externalId":"loan-3","customerExternalId":"ghost","amount":"100"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		mockService.On("CreateLoan", mock.Anything, "ghost", "loan-3", mock.Anything, "").Return(nil, apperrors.ErrNotFound)

		h.CreateLoan(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("amount is not a decimal", func(t *testing.T) {
		mockService := new(MockLoanService)
		h := handler.NewLoanHandler(mockService, logger)

		body := `{"externalId":"loan-4","customerExternalId":"cust-1","amount":"lots"}`
		req := httptest.NewRequest(http.MethodPost, "/loans", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		h.CreateLoan(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockService.AssertNotCalled(t, "CreateLoan")
	})
}

func TestListCustomerLoans(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	mockService := new(MockLoanService)
	h := handler.NewLoanHandler(mockService, logger)

	loans := []*loan.Loan{
		{ExternalID: "loan-1", Amount: decimal.NewFromInt(300), Outstanding: decimal.Zero, Status: loan.StatusPaid},
		{ExternalID: "loan-2", Amount: decimal.NewFromInt(500), Outstanding: decimal.NewFromInt(400), Status: loan.StatusActive},
	}
	mockService.On("ListByCustomer", mock.Anything, "cust-1").Return(loans, nil)

	req := httptest.NewRequest(http.MethodGet, "/customers/cust-1/loans", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("externalID", "cust-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	rec := httptest.NewRecorder()

	h.ListCustomerLoans(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []dto.LoanResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "0", resp[0].Outstanding)
	mockService.AssertExpectations(t)
}
