package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/kontent/connection-service/internal/store"
	"github.com/sirupsen/logrus"
)

// RequestConnectionInput is a requester's ask to connect with a recipient.
type RequestConnectionInput struct {
	RecipientID uuid.UUID
	MomentID    *uuid.UUID
}

// RequestConnection opens a PENDING_PAYMENT connection, or returns the open one
// that already exists for the same (requester, recipient, moment). created
// reports which of the two happened.
func (s *Service) RequestConnection(ctx context.Context, requesterID uuid.UUID, in RequestConnectionInput) (conn *domain.Connection, created bool, err error) {
	if requesterID == in.RecipientID {
		return nil, false, domain.ErrSelfConnection
	}
	exists, err := s.repo.UserExists(ctx, in.RecipientID)
	if err != nil {
		return nil, false, fmt.Errorf("check recipient: %w", err)
	}
	if !exists {
		return nil, false, domain.ErrRecipientNotFound
	}
	if err := s.enforceRateLimit(ctx, "connection_request", requesterID, s.opts.ConnectionRequestLimitPerMin); err != nil {
		return nil, false, err
	}

	err = s.repo.WithinTx(ctx, func(tx store.Tx) error {
		existing, findErr := tx.FindOpenConnection(ctx, requesterID, in.RecipientID, in.MomentID)
		if findErr == nil {
			conn = existing
			return nil
		}
		if !errors.Is(findErr, domain.ErrConnectionNotFound) {
			return findErr
		}

		split, feeErr := s.fees.Resolve(ctx, tx, s.opts.FeeConfigName)
		if feeErr != nil {
			return feeErr
		}

		now := s.now()
		conn = &domain.Connection{
			ID:          uuid.New(),
			RequesterID: requesterID,
			RecipientID: in.RecipientID,
			MomentID:    in.MomentID,
			Status:      domain.ConnectionPendingPayment,
			FeeAmount:   split.FeeAmount,
			PlatformCut: split.PlatformCut,
			PosterShare: split.PosterShare,
			Currency:    split.Currency,
			ConfigName:  split.ConfigName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if insertErr := tx.InsertConnection(ctx, conn); insertErr != nil {
			return insertErr
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.log.WithFields(logrus.Fields{
			"connection_id": conn.ID,
			"requester_id":  requesterID,
			"recipient_id":  in.RecipientID,
			"fee_amount":    conn.FeeAmount.String(),
		}).Info("connection requested")
	}
	return conn, created, nil
}

// ConfirmPayment records the requester's payment and moves the connection to
// PAID_PENDING_ACCEPT. No ledger row is written unless the transition succeeds.
func (s *Service) ConfirmPayment(ctx context.Context, payment domain.PaymentConfirmation) (*domain.Connection, error) {
	if err := payment.Validate(); err != nil {
		return nil, err
	}

	var conn *domain.Connection
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		conn, err = tx.GetConnectionForUpdate(ctx, payment.ConnectionID)
		if err != nil {
			return err
		}
		if payment.PayerID != nil && *payment.PayerID != conn.RequesterID {
			return domain.ErrNotParty
		}
		if conn.Status != domain.ConnectionPendingPayment {
			return &domain.InvalidStateError{Entity: "connection", Current: string(conn.Status), Want: string(domain.ConnectionPendingPayment)}
		}
		if !payment.Amount.Equal(conn.FeeAmount) || payment.Currency != conn.Currency {
			return domain.ErrPaymentMismatch
		}

		if _, err := s.ledger.RecordPayment(ctx, tx, conn, payment); err != nil {
			return err
		}
		return s.transition(ctx, tx, conn, domain.ConnectionPaidPendingAccept)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("connection_id", conn.ID).Info("connection payment confirmed")
	s.notifyConnection(conn, conn.RecipientID, conn.RequesterID, domain.NotificationConnectionRequest)
	return conn, nil
}

// UpdateStatus applies a status change sent by a party. The recipient may accept
// or decline; the requester may cancel.
func (s *Service) UpdateStatus(ctx context.Context, connectionID, callerID uuid.UUID, rawStatus string) (*domain.Connection, error) {
	status, err := domain.ParseStatusUpdate(rawStatus)
	if err != nil {
		return nil, err
	}
	if status == domain.ConnectionCanceled {
		return s.Cancel(ctx, connectionID, callerID)
	}
	return s.Respond(ctx, connectionID, callerID, status)
}

// Respond lets the recipient accept or decline a paid connection. Accepting
// credits the recipient's share; declining records a refund for the requester.
func (s *Service) Respond(ctx context.Context, connectionID, recipientID uuid.UUID, decision domain.ConnectionStatus) (*domain.Connection, error) {
	if decision != domain.ConnectionAccepted && decision != domain.ConnectionDeclined {
		return nil, domain.ErrInvalidStatusValue
	}

	var (
		conn   *domain.Connection
		refund *domain.Transaction
	)
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		conn, err = tx.GetConnectionForUpdate(ctx, connectionID)
		if err != nil {
			return err
		}
		if conn.RecipientID != recipientID {
			return domain.ErrNotParty
		}
		if conn.Status != domain.ConnectionPaidPendingAccept {
			return &domain.InvalidStateError{Entity: "connection", Current: string(conn.Status), Want: string(domain.ConnectionPaidPendingAccept)}
		}

		if decision == domain.ConnectionAccepted {
			if _, err := s.ledger.RecordEarning(ctx, tx, conn.RecipientID, conn.ID, conn.PosterShare, conn.Currency); err != nil {
				return err
			}
		} else {
			if refund, err = s.ledger.RequestRefund(ctx, tx, conn.ID); err != nil {
				return err
			}
		}
		return s.transition(ctx, tx, conn, decision)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"connection_id": conn.ID, "status": conn.Status}).Info("connection answered")
	if decision == domain.ConnectionAccepted {
		s.notifyConnection(conn, conn.RequesterID, conn.RecipientID, domain.NotificationConnectionAccepted)
	} else {
		s.notifyConnection(conn, conn.RequesterID, conn.RecipientID, domain.NotificationConnectionDeclined)
		s.publishRefundRequested(refund, "connection_declined")
	}
	return conn, nil
}

// Cancel lets the requester withdraw a connection that has not been answered.
// A paid connection also records a refund.
func (s *Service) Cancel(ctx context.Context, connectionID, requesterID uuid.UUID) (*domain.Connection, error) {
	var (
		conn    *domain.Connection
		refund  *domain.Transaction
		wasPaid bool
	)
	err := s.repo.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		conn, err = tx.GetConnectionForUpdate(ctx, connectionID)
		if err != nil {
			return err
		}
		if conn.RequesterID != requesterID {
			return domain.ErrNotParty
		}
		if !conn.Status.CanTransitionTo(domain.ConnectionCanceled) {
			return &domain.InvalidStateError{Entity: "connection", Current: string(conn.Status), Want: "PENDING_PAYMENT or PAID_PENDING_ACCEPT"}
		}
		wasPaid = conn.Status == domain.ConnectionPaidPendingAccept
		if wasPaid {
			if refund, err = s.ledger.RequestRefund(ctx, tx, conn.ID); err != nil {
				return err
			}
		}
		return s.transition(ctx, tx, conn, domain.ConnectionCanceled)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"connection_id": conn.ID, "was_paid": wasPaid}).Info("connection canceled")
	if wasPaid {
		s.notifyConnection(conn, conn.RecipientID, conn.RequesterID, domain.NotificationConnectionCanceled)
		s.publishRefundRequested(refund, "connection_canceled")
	}
	return conn, nil
}

// GetConnection returns a connection to one of its parties.
func (s *Service) GetConnection(ctx context.Context, connectionID, callerID uuid.UUID) (*domain.Connection, error) {
	conn, err := s.repo.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsParty(callerID) {
		return nil, domain.ErrNotParty
	}
	return conn, nil
}

// ListConnections lists the caller's connections.
func (s *Service) ListConnections(ctx context.Context, callerID uuid.UUID, opts domain.ConnectionListOptions) ([]domain.Connection, error) {
	if opts.Status != "" && !opts.Status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "unknown connection status"}
	}
	switch opts.Role {
	case domain.ConnectionRoleAny, domain.ConnectionRoleRequester, domain.ConnectionRoleRecipient:
	default:
		return nil, &domain.ValidationError{Field: "role", Reason: "must be requester or recipient"}
	}
	return s.repo.ListConnectionsByUser(ctx, callerID, opts)
}

// transition checks the lifecycle table and persists next.
func (s *Service) transition(ctx context.Context, tx store.Tx, conn *domain.Connection, next domain.ConnectionStatus) error {
	if !conn.Status.CanTransitionTo(next) {
		return &domain.InvalidStateError{Entity: "connection", Current: string(conn.Status), Want: "a state that can move to " + string(next)}
	}
	now := s.now()
	if err := tx.UpdateConnectionStatus(ctx, conn.ID, next, now); err != nil {
		return err
	}
	conn.Status = next
	conn.UpdatedAt = now
	return nil
}

func (s *Service) notifyConnection(conn *domain.Connection, recipientID, actorID uuid.UUID, t domain.NotificationType) {
	entityID := conn.ID
	sender := actorID
	s.notify(domain.Notification{
		RecipientID: recipientID,
		SenderID:    &sender,
		Type:        t,
		EntityID:    &entityID,
		EntityType:  domain.EntityTypeConnection,
		CreatedAt:   s.now(),
	})
}
