package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationType identifies the event a notification describes.
type NotificationType string

const (
	NotificationConnectionRequest  NotificationType = "CONNECTION_REQUEST"
	NotificationConnectionAccepted NotificationType = "CONNECTION_ACCEPTED"
	NotificationConnectionDeclined NotificationType = "CONNECTION_DECLINED"
	NotificationConnectionCanceled NotificationType = "CONNECTION_CANCELED"
	NotificationNewMessage         NotificationType = "NEW_MESSAGE"
)

const (
	EntityTypeConnection = "connection"
	EntityTypeMessage    = "message"
)

// Notification is a user-facing event emitted after a state change commits.
type Notification struct {
	RecipientID uuid.UUID        `json:"recipient_id"`
	SenderID    *uuid.UUID       `json:"sender_id,omitempty"`
	Type        NotificationType `json:"type"`
	Title       string           `json:"title"`
	Body        string           `json:"message"`
	EntityID    *uuid.UUID       `json:"entity_id,omitempty"`
	EntityType  string           `json:"entity_type,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// RoutingKey is the topic the notification is published under.
func (n Notification) RoutingKey() string {
	return "notification." + string(n.Type)
}

// NotificationText renders the title and body for a notification type, where
// actor is the display name of the user who caused it.
func NotificationText(t NotificationType, actor string) (title, body string) {
	switch t {
	case NotificationConnectionRequest:
		return "New Connection Request!", fmt.Sprintf("%s has paid to connect with you. Accept to chat!", actor)
	case NotificationConnectionAccepted:
		return "Connection Accepted!", fmt.Sprintf("%s has accepted your connection request. You can now chat!", actor)
	case NotificationConnectionDeclined:
		return "Connection Declined", fmt.Sprintf("%s has declined your connection request.", actor)
	case NotificationConnectionCanceled:
		return "Connection Canceled", fmt.Sprintf("%s has canceled their connection request.", actor)
	case NotificationNewMessage:
		return "New Message", fmt.Sprintf("You have a new message from %s.", actor)
	}
	return string(t), ""
}
