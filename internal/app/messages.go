package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
)

// ensureCanMessage allows only the two parties of an ACCEPTED connection.
func ensureCanMessage(conn *domain.Connection, userID uuid.UUID) error {
	if !conn.IsParty(userID) {
		return domain.ErrNotParty
	}
	if conn.Status != domain.ConnectionAccepted {
		return domain.ErrConnectionNotActive
	}
	return nil
}

// SendMessage stores a message from sender over an accepted connection and
// notifies the other party.
func (s *Service) SendMessage(ctx context.Context, connectionID, senderID uuid.UUID, text string) (*domain.Message, error) {
	if err := domain.ValidateMessageText(text); err != nil {
		return nil, err
	}
	conn, err := s.repo.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if err := ensureCanMessage(conn, senderID); err != nil {
		return nil, err
	}
	if err := s.enforceRateLimit(ctx, "message_send", senderID, s.opts.MessageLimitPerMin); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:           uuid.New(),
		ConnectionID: conn.ID,
		SenderID:     senderID,
		Text:         text,
		CreatedAt:    s.now(),
	}
	if err := s.repo.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	entityID := msg.ID
	sender := senderID
	s.notify(domain.Notification{
		RecipientID: conn.Counterparty(senderID),
		SenderID:    &sender,
		Type:        domain.NotificationNewMessage,
		EntityID:    &entityID,
		EntityType:  domain.EntityTypeMessage,
		CreatedAt:   msg.CreatedAt,
	})
	return msg, nil
}

// ListMessages returns a conversation to one of its parties. Parties of a
// connection that is no longer accepted keep read access to its history.
func (s *Service) ListMessages(ctx context.Context, connectionID, callerID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	conn, err := s.repo.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsParty(callerID) {
		return nil, domain.ErrNotParty
	}
	return s.repo.ListMessagesByConnection(ctx, connectionID, limit, offset)
}

// MarkMessageRead marks a message read on behalf of its receiver. Marking an
// already-read message succeeds without change.
func (s *Service) MarkMessageRead(ctx context.Context, messageID, readerID uuid.UUID) (*domain.Message, error) {
	msg, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conn, err := s.repo.GetConnection(ctx, msg.ConnectionID)
	if err != nil {
		return nil, err
	}
	if !conn.IsParty(readerID) || msg.SenderID == readerID {
		return nil, domain.ErrForbidden
	}
	if msg.IsRead {
		return msg, nil
	}

	at := s.now()
	changed, err := s.repo.MarkMessageRead(ctx, messageID, at)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Another reader won the race; report its timestamp.
		return s.repo.GetMessage(ctx, messageID)
	}
	msg.IsRead = true
	msg.ReadAt = &at
	return msg, nil
}
