package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/store"
	"github.com/sirupsen/logrus"
)

// ListTransactions lists the payments the caller made.
func (s *Service) ListTransactions(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	return s.repo.ListTransactionsByPayer(ctx, payerID, limit, offset)
}

// GetTransaction returns one of the caller's payments.
func (s *Service) GetTransaction(ctx context.Context, transactionID, callerID uuid.UUID) (*domain.Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.PayerID != callerID {
		return nil, domain.ErrForbidden
	}
	return txn, nil
}

// ListEarnings lists the caller's earnings.
func (s *Service) ListEarnings(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]domain.Earning, error) {
	return s.repo.ListEarningsByRecipient(ctx, recipientID, limit, offset)
}

// GetEarning returns one of the caller's earnings.
func (s *Service) GetEarning(ctx context.Context, earningID, callerID uuid.UUID) (*domain.Earning, error) {
	earning, err := s.repo.GetEarning(ctx, earningID)
	if err != nil {
		return nil, err
	}
	if earning.RecipientID != callerID {
		return nil, domain.ErrForbidden
	}
	return earning, nil
}

// SettleEarning links an earning to the payout transaction that paid it.
func (s *Service) SettleEarning(ctx context.Context, earningID, payoutTransactionID uuid.UUID) (*domain.Earning, error) {
	var earning *domain.Earning
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetTransactionForUpdate(ctx, payoutTransactionID); err != nil {
			return err
		}
		var err error
		earning, err = s.ledger.SettleEarning(ctx, tx, earningID, payoutTransactionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"earning_id": earningID, "payout_transaction_id": payoutTransactionID}).Info("earning settled")
	return earning, nil
}

// CancelEarning withdraws an unpaid earning, e.g. after a chargeback on the
// payment that funded it.
func (s *Service) CancelEarning(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error) {
	var earning *domain.Earning
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		earning, err = s.ledger.CancelEarning(ctx, tx, earningID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("earning_id", earningID).Info("earning canceled")
	return earning, nil
}

// CompleteRefund marks a refund as returned to the requester. Repeated
// completions of the same refund succeed without changing anything.
func (s *Service) CompleteRefund(ctx context.Context, in domain.RefundCompletion) (*domain.Transaction, error) {
	if in.TransactionID == nil && in.ExternalID == "" {
		return nil, &domain.ValidationError{Field: "transaction_id", Reason: "transaction_id or external_id is required"}
	}

	var txn *domain.Transaction
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		if in.TransactionID != nil {
			txn, err = tx.GetTransactionForUpdate(ctx, *in.TransactionID)
		} else {
			txn, err = tx.FindTransactionByExternalIDForUpdate(ctx, in.ExternalID)
		}
		if err != nil {
			return err
		}
		txn, err = s.ledger.CompleteRefund(ctx, tx, txn)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithField("transaction_id", txn.ID).Info("refund completed")
	return txn, nil
}

// ExpireStalePendingPayments cancels connections that stayed unpaid for longer
// than ttl, freeing their uniqueness slot. It returns how many were canceled.
func (s *Service) ExpireStalePendingPayments(ctx context.Context, ttl time.Duration, batchSize int) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-ttl)
	ids, err := s.repo.ListStalePendingConnectionIDs(ctx, cutoff, batchSize)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
			conn, err := tx.GetConnectionForUpdate(ctx, id)
			if err != nil {
				return err
			}
			// Paid or answered since it was listed.
			if conn.Status != domain.ConnectionPendingPayment || !conn.CreatedAt.Before(cutoff) {
				return errSkipped
			}
			return s.transition(ctx, tx, conn, domain.ConnectionCanceled)
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, errSkipped):
		default:
			s.log.WithError(err).WithField("connection_id", id).Warn("failed to expire pending connection")
		}
	}
	return expired, nil
}

// RedispatchRefundRequests publishes again every refund that has been pending
// for longer than after. It returns how many were published.
func (s *Service) RedispatchRefundRequests(ctx context.Context, after time.Duration, batchSize int) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}
	pending, err := s.repo.ListRefundPendingTransactions(ctx, s.now().Add(-after), batchSize)
	if err != nil {
		return 0, err
	}

	published := 0
	for i := range pending {
		evt := domain.NewRefundRequestedEvent(&pending[i], "redispatch")
		if err := s.publisher.Publish(ctx, s.opts.EventsExchange, domain.RoutingKeyRefundRequested, evt); err != nil {
			s.log.WithError(err).WithField("transaction_id", pending[i].ID).Warn("failed to redispatch refund request")
			continue
		}
		published++
	}
	return published, nil
}

var errSkipped = errors.New("skipped")
