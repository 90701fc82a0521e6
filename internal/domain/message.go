package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxMessageLength is the upper bound on message text, counted in characters.
const MaxMessageLength = 1000

// Message is a chat message exchanged over an accepted connection.
type Message struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	SenderID     uuid.UUID  `json:"sender_id"`
	Text         string     `json:"text"`
	IsRead       bool       `json:"is_read"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// ValidateMessageText enforces the 1..1000 character bound.
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrInvalidMessageText
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return ErrInvalidMessageText
	}
	return nil
}
