package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CustomerCreatedEvent struct {
	ExternalID string          `json:"externalId"`
	Score      decimal.Decimal `json:"score"`
	Timestamp  time.Time       `json:"timestamp"`
}

type CustomerPreapprovedEvent struct {
	ExternalID    string    `json:"externalId"`
	PreapprovedAt time.Time `json:"preapprovedAt"`
}

type LoanCreatedEvent struct {
	ExternalID         string          `json:"externalId"`
	CustomerExternalID string          `json:"customerExternalId"`
	Amount             decimal.Decimal `json:"amount"`
	TakenAt            time.Time       `json:"takenAt"`
}

type PaymentDetailEvent struct {
	LoanExternalID string          `json:"loanExternalId"`
	Amount         decimal.Decimal `json:"amount"`
}

type PaymentCompletedEvent struct {
	ExternalID         string               `json:"externalId"`
	CustomerExternalID string               `json:"customerExternalId"`
	TotalAmount        decimal.Decimal      `json:"totalAmount"`
	PaidAt             time.Time            `json:"paidAt"`
	Details            []PaymentDetailEvent `json:"details"`
}

type Publisher interface {
	PublishCustomerCreated(ctx context.Context, evt CustomerCreatedEvent) error
	PublishCustomerPreapproved(ctx context.Context, evt CustomerPreapprovedEvent) error
	PublishLoanCreated(ctx context.Context, evt LoanCreatedEvent) error
	PublishPaymentCompleted(ctx context.Context, evt PaymentCompletedEvent) error
}

// NoopPublisher is used when messaging is disabled in configuration.
type NoopPublisher struct{}

var _ Publisher = NoopPublisher{}

func (NoopPublisher) PublishCustomerCreated(context.Context, CustomerCreatedEvent) error { return nil }

func (NoopPublisher) PublishCustomerPreapproved(context.Context, CustomerPreapprovedEvent) error {
	return nil
}

func (NoopPublisher) PublishLoanCreated(context.Context, LoanCreatedEvent) error { return nil }

func (NoopPublisher) PublishPaymentCompleted(context.Context, PaymentCompletedEvent) error {
	return nil
}
