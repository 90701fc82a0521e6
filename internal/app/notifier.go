package app

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
	"github.com/sirupsen/logrus"
)

// UsernameResolver returns a user's display name.
type UsernameResolver interface {
	FindUsername(ctx context.Context, userID uuid.UUID) (string, error)
}

// NotificationEmitter renders notifications and publishes them on the events
// exchange under notification.<TYPE> for the notification service to deliver.
type NotificationEmitter struct {
	publisher EventPublisher
	users     UsernameResolver
	exchange  string
	log       *logrus.Entry
}

func NewNotificationEmitter(publisher EventPublisher, users UsernameResolver, exchange string, log logrus.FieldLogger) *NotificationEmitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &NotificationEmitter{
		publisher: publisher,
		users:     users,
		exchange:  exchange,
		log:       log.WithField("component", "notification_emitter"),
	}
}

// Notify fills in the title and body from the actor's username, then publishes.
// An unresolvable username degrades to a generic name rather than dropping the
// notification.
func (e *NotificationEmitter) Notify(ctx context.Context, n domain.Notification) error {
	if n.Title == "" && n.Body == "" {
		actor := "Someone"
		if n.SenderID != nil && e.users != nil {
			name, err := e.users.FindUsername(ctx, *n.SenderID)
			if err != nil {
				e.log.WithError(err).WithField("user_id", *n.SenderID).Warn("username lookup failed for notification")
			} else if strings.TrimSpace(name) != "" {
				actor = strings.TrimSpace(name)
			}
		}
		n.Title, n.Body = domain.NotificationText(n.Type, actor)
	}

	if err := e.publisher.Publish(ctx, e.exchange, n.RoutingKey(), n); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"type": n.Type, "recipient_id": n.RecipientID}).Debug("notification published")
	return nil
}
