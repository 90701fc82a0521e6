package storetest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
)

// memoryTx applies writes to one state snapshot. Uniqueness mirrors the
// constraints in db/migrations.
type memoryTx struct {
	s *state
}

func (t *memoryTx) GetConnectionForUpdate(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	c, ok := t.s.connections[connectionID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	return &c, nil
}

func (t *memoryTx) FindOpenConnection(ctx context.Context, requesterID, recipientID uuid.UUID, momentID *uuid.UUID) (*domain.Connection, error) {
	for _, c := range t.s.connections {
		if c.RequesterID == requesterID && c.RecipientID == recipientID &&
			domain.SameMoment(c.MomentID, momentID) && !c.Status.IsTerminal() {
			found := c
			return &found, nil
		}
	}
	return nil, domain.ErrConnectionNotFound
}

func (t *memoryTx) InsertConnection(ctx context.Context, conn *domain.Connection) error {
	if _, err := t.FindOpenConnection(ctx, conn.RequesterID, conn.RecipientID, conn.MomentID); err == nil {
		return domain.ErrOpenConnectionExists
	}
	c := *conn
	c.UpdatedAt = c.CreatedAt
	t.s.connections[c.ID] = c
	return nil
}

func (t *memoryTx) UpdateConnectionStatus(ctx context.Context, connectionID uuid.UUID, status domain.ConnectionStatus, at time.Time) error {
	c, ok := t.s.connections[connectionID]
	if !ok {
		return domain.ErrConnectionNotFound
	}
	c.Status = status
	c.UpdatedAt = at
	t.s.connections[connectionID] = c
	return nil
}

func (t *memoryTx) FindActiveMonetizationConfig(ctx context.Context, name string) (*domain.MonetizationConfig, error) {
	for _, cfg := range t.s.configs {
		if cfg.Name == name && cfg.IsActive {
			found := cfg
			return &found, nil
		}
	}
	return nil, domain.ErrConfigNotFound
}

func (t *memoryTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	for _, existing := range t.s.transactions {
		if txn.ConnectionID != nil && existing.ConnectionID != nil && *existing.ConnectionID == *txn.ConnectionID {
			return domain.ErrDuplicateLedgerEntry
		}
		if txn.ExternalID != nil && existing.ExternalID != nil && *existing.ExternalID == *txn.ExternalID {
			return domain.ErrDuplicatePaymentRef
		}
	}
	row := *txn
	row.UpdatedAt = row.TransactionDate
	t.s.transactions[row.ID] = row
	return nil
}

func (t *memoryTx) GetTransactionForUpdate(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	txn, ok := t.s.transactions[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	return &txn, nil
}

func (t *memoryTx) FindTransactionByConnectionForUpdate(ctx context.Context, connectionID uuid.UUID) (*domain.Transaction, error) {
	for _, txn := range t.s.transactions {
		if txn.ConnectionID != nil && *txn.ConnectionID == connectionID {
			found := txn
			return &found, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (t *memoryTx) FindTransactionByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Transaction, error) {
	for _, txn := range t.s.transactions {
		if txn.ExternalID != nil && *txn.ExternalID == externalID {
			found := txn
			return &found, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (t *memoryTx) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status domain.TransactionStatus, at time.Time) error {
	txn, ok := t.s.transactions[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	txn.Status = status
	txn.UpdatedAt = at
	switch status {
	case domain.TransactionRefundPending:
		txn.RefundRequestedAt = &at
	case domain.TransactionRefunded:
		txn.RefundedAt = &at
	}
	t.s.transactions[transactionID] = txn
	return nil
}

func (t *memoryTx) InsertEarning(ctx context.Context, earning *domain.Earning) error {
	for _, existing := range t.s.earnings {
		if existing.ConnectionID == earning.ConnectionID {
			return domain.ErrDuplicateLedgerEntry
		}
	}
	t.s.earnings[earning.ID] = *earning
	return nil
}

func (t *memoryTx) GetEarningForUpdate(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error) {
	e, ok := t.s.earnings[earningID]
	if !ok {
		return nil, domain.ErrEarningNotFound
	}
	return &e, nil
}

func (t *memoryTx) MarkEarningCanceled(ctx context.Context, earningID uuid.UUID, at time.Time) error {
	e, ok := t.s.earnings[earningID]
	if !ok {
		return domain.ErrEarningNotFound
	}
	e.Status = domain.EarningCanceled
	e.CanceledAt = &at
	t.s.earnings[earningID] = e
	return nil
}

func (t *memoryTx) MarkEarningPaidOut(ctx context.Context, earningID, payoutTransactionID uuid.UUID, at time.Time) error {
	e, ok := t.s.earnings[earningID]
	if !ok {
		return domain.ErrEarningNotFound
	}
	e.Status = domain.EarningPaidOut
	e.PaidOutAt = &at
	e.PayoutTransactionID = &payoutTransactionID
	t.s.earnings[earningID] = e
	return nil
}
