package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys on the events exchange.
const (
	RoutingKeyPaymentSucceeded = "payment.succeeded"
	RoutingKeyRefundRequested  = "payment.refund.requested"
	RoutingKeyRefundCompleted  = "payment.refund.completed"
)

// PaymentSucceededEvent is published by the payment provider integration once a
// requester's payment clears.
type PaymentSucceededEvent struct {
	ConnectionID  uuid.UUID       `json:"connection_id"`
	PayerID       *uuid.UUID      `json:"payer_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	ExternalID    *string         `json:"external_id,omitempty"`
}

// RefundRequestedEvent asks the payment provider integration to return a payment.
type RefundRequestedEvent struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	ConnectionID  uuid.UUID       `json:"connection_id"`
	PayerID       uuid.UUID       `json:"payer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	ExternalID    *string         `json:"external_id,omitempty"`
	Reason        string          `json:"reason"`
	RequestedAt   time.Time       `json:"requested_at"`
}

// RefundCompletedEvent reports a refund the provider has settled.
type RefundCompletedEvent struct {
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	ExternalID    string     `json:"external_id,omitempty"`
}

// NewRefundRequestedEvent builds the outbound refund request for txn.
func NewRefundRequestedEvent(txn *Transaction, reason string) RefundRequestedEvent {
	evt := RefundRequestedEvent{
		TransactionID: txn.ID,
		PayerID:       txn.PayerID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		ExternalID:    txn.ExternalID,
		Reason:        reason,
	}
	if txn.ConnectionID != nil {
		evt.ConnectionID = *txn.ConnectionID
	}
	if txn.RefundRequestedAt != nil {
		evt.RequestedAt = *txn.RefundRequestedAt
	}
	return evt
}
