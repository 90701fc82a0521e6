package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus tracks a requester payment through settlement and refund.
type TransactionStatus string

const (
	TransactionPending       TransactionStatus = "PENDING"
	TransactionSuccess       TransactionStatus = "SUCCESS"
	TransactionFailed        TransactionStatus = "FAILED"
	TransactionRefundPending TransactionStatus = "REFUND_PENDING"
	TransactionRefunded      TransactionStatus = "REFUNDED"
)

// Transaction is the ledger row for money a requester paid.
type Transaction struct {
	ID                uuid.UUID         `json:"id"`
	PayerID           uuid.UUID         `json:"user_id"`
	ConnectionID      *uuid.UUID        `json:"connection_id,omitempty"`
	Amount            decimal.Decimal   `json:"amount"`
	Currency          string            `json:"currency"`
	Status            TransactionStatus `json:"status"`
	PaymentMethod     string            `json:"payment_method"`
	ExternalID        *string           `json:"external_id,omitempty"`
	TransactionDate   time.Time         `json:"transaction_date"`
	RefundRequestedAt *time.Time        `json:"refund_requested_at,omitempty"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// EarningStatus tracks a recipient's share until it is paid out.
type EarningStatus string

const (
	EarningPendingPayout EarningStatus = "PENDING_PAYOUT"
	EarningPaidOut       EarningStatus = "PAID_OUT"
	EarningCanceled      EarningStatus = "CANCELED"
)

// Earning is the ledger row for the recipient's share of an accepted connection.
type Earning struct {
	ID                  uuid.UUID       `json:"id"`
	RecipientID         uuid.UUID       `json:"user_id"`
	ConnectionID        uuid.UUID       `json:"connection_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Status              EarningStatus   `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	PaidOutAt           *time.Time      `json:"paid_out_at,omitempty"`
	CanceledAt          *time.Time      `json:"canceled_at,omitempty"`
	PayoutTransactionID *uuid.UUID      `json:"payout_transaction_id,omitempty"`
}

// PaymentConfirmation is what the payment provider reports about a requester's payment.
type PaymentConfirmation struct {
	ConnectionID  uuid.UUID
	PayerID       *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	PaymentMethod string
	ExternalID    *string
}

// Validate checks field shapes; amount and currency are matched against the
// connection separately.
func (p *PaymentConfirmation) Validate() error {
	if !p.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	currency, err := NormalizeCurrency(p.Currency)
	if err != nil {
		return err
	}
	p.Currency = currency
	if p.PaymentMethod == "" || len(p.PaymentMethod) > 50 {
		return &ValidationError{Field: "payment_method", Reason: "must be between 1 and 50 characters"}
	}
	if p.ExternalID != nil && (len(*p.ExternalID) == 0 || len(*p.ExternalID) > 100) {
		return &ValidationError{Field: "external_id", Reason: "must be between 1 and 100 characters"}
	}
	return nil
}

// RefundCompletion identifies a refund the payment provider has settled.
type RefundCompletion struct {
	TransactionID *uuid.UUID
	ExternalID    string
}
