package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/store"
	"github.com/shopspring/decimal"
)

// LedgerRecorder writes payment and earning rows inside the caller's unit of
// work. At most one transaction and one earning may exist per connection.
type LedgerRecorder struct {
	now func() time.Time
}

func (l LedgerRecorder) clock() time.Time {
	if l.now == nil {
		return time.Now().UTC()
	}
	return l.now()
}

// RecordPayment stores a successful requester payment for conn.
func (l LedgerRecorder) RecordPayment(ctx context.Context, tx store.Tx, conn *domain.Connection, payment domain.PaymentConfirmation) (*domain.Transaction, error) {
	if _, err := tx.FindTransactionByConnectionForUpdate(ctx, conn.ID); err == nil {
		return nil, domain.ErrDuplicateLedgerEntry
	} else if !errors.Is(err, domain.ErrTransactionNotFound) {
		return nil, err
	}

	connectionID := conn.ID
	txn := &domain.Transaction{
		ID:              uuid.New(),
		PayerID:         conn.RequesterID,
		ConnectionID:    &connectionID,
		Amount:          payment.Amount,
		Currency:        payment.Currency,
		Status:          domain.TransactionSuccess,
		PaymentMethod:   payment.PaymentMethod,
		ExternalID:      payment.ExternalID,
		TransactionDate: l.clock(),
	}
	txn.UpdatedAt = txn.TransactionDate
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// RecordEarning credits the recipient's share of an accepted connection.
func (l LedgerRecorder) RecordEarning(ctx context.Context, tx store.Tx, recipientID, connectionID uuid.UUID, amount decimal.Decimal, currency string) (*domain.Earning, error) {
	if amount.IsNegative() {
		return nil, &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	earning := &domain.Earning{
		ID:           uuid.New(),
		RecipientID:  recipientID,
		ConnectionID: connectionID,
		Amount:       amount,
		Currency:     currency,
		Status:       domain.EarningPendingPayout,
		CreatedAt:    l.clock(),
	}
	if err := tx.InsertEarning(ctx, earning); err != nil {
		return nil, err
	}
	return earning, nil
}

// SettleEarning marks an earning paid out against a payout transaction.
func (l LedgerRecorder) SettleEarning(ctx context.Context, tx store.Tx, earningID, payoutTransactionID uuid.UUID) (*domain.Earning, error) {
	earning, err := tx.GetEarningForUpdate(ctx, earningID)
	if err != nil {
		return nil, err
	}
	if earning.Status != domain.EarningPendingPayout {
		return nil, &domain.InvalidStateError{Entity: "earning", Current: string(earning.Status), Want: string(domain.EarningPendingPayout)}
	}
	at := l.clock()
	if err := tx.MarkEarningPaidOut(ctx, earningID, payoutTransactionID, at); err != nil {
		return nil, err
	}
	earning.Status = domain.EarningPaidOut
	earning.PaidOutAt = &at
	earning.PayoutTransactionID = &payoutTransactionID
	return earning, nil
}

// CancelEarning withdraws an earning that has not been paid out.
func (l LedgerRecorder) CancelEarning(ctx context.Context, tx store.Tx, earningID uuid.UUID) (*domain.Earning, error) {
	earning, err := tx.GetEarningForUpdate(ctx, earningID)
	if err != nil {
		return nil, err
	}
	if earning.Status != domain.EarningPendingPayout {
		return nil, &domain.InvalidStateError{Entity: "earning", Current: string(earning.Status), Want: string(domain.EarningPendingPayout)}
	}
	at := l.clock()
	if err := tx.MarkEarningCanceled(ctx, earningID, at); err != nil {
		return nil, err
	}
	earning.Status = domain.EarningCanceled
	earning.CanceledAt = &at
	return earning, nil
}

// RequestRefund records the intent to return the payment held for connectionID.
func (l LedgerRecorder) RequestRefund(ctx context.Context, tx store.Tx, connectionID uuid.UUID) (*domain.Transaction, error) {
	txn, err := tx.FindTransactionByConnectionForUpdate(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("find payment for connection %s: %w", connectionID, err)
	}
	switch txn.Status {
	case domain.TransactionRefundPending, domain.TransactionRefunded:
		return txn, nil
	case domain.TransactionSuccess:
	default:
		return nil, &domain.InvalidStateError{Entity: "transaction", Current: string(txn.Status), Want: string(domain.TransactionSuccess)}
	}

	at := l.clock()
	if err := tx.UpdateTransactionStatus(ctx, txn.ID, domain.TransactionRefundPending, at); err != nil {
		return nil, err
	}
	txn.Status = domain.TransactionRefundPending
	txn.RefundRequestedAt = &at
	txn.UpdatedAt = at
	return txn, nil
}

// CompleteRefund marks a pending refund as returned. Completing an already
// refunded transaction is a no-op.
func (l LedgerRecorder) CompleteRefund(ctx context.Context, tx store.Tx, txn *domain.Transaction) (*domain.Transaction, error) {
	switch txn.Status {
	case domain.TransactionRefunded:
		return txn, nil
	case domain.TransactionRefundPending:
	default:
		return nil, &domain.InvalidStateError{Entity: "transaction", Current: string(txn.Status), Want: string(domain.TransactionRefundPending)}
	}

	at := l.clock()
	if err := tx.UpdateTransactionStatus(ctx, txn.ID, domain.TransactionRefunded, at); err != nil {
		return nil, err
	}
	txn.Status = domain.TransactionRefunded
	txn.RefundedAt = &at
	txn.UpdatedAt = at
	return txn, nil
}
