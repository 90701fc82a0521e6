/**
 * @description
 * Domain model for paid connections between two users. A connection carries the
 * fee split that was resolved when it was created; later changes to the active
 * monetization config never rewrite it.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus string

const (
	ConnectionPendingPayment    ConnectionStatus = "PENDING_PAYMENT"
	ConnectionPaidPendingAccept ConnectionStatus = "PAID_PENDING_ACCEPT"
	ConnectionAccepted          ConnectionStatus = "ACCEPTED"
	ConnectionDeclined          ConnectionStatus = "DECLINED"
	ConnectionCanceled          ConnectionStatus = "CANCELED"
)

var connectionTransitions = map[ConnectionStatus][]ConnectionStatus{
	ConnectionPendingPayment:    {ConnectionPaidPendingAccept, ConnectionCanceled},
	ConnectionPaidPendingAccept: {ConnectionAccepted, ConnectionDeclined, ConnectionCanceled},
}

// IsTerminal reports whether no further transition is possible.
func (s ConnectionStatus) IsTerminal() bool {
	return len(connectionTransitions[s]) == 0
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s ConnectionStatus) CanTransitionTo(next ConnectionStatus) bool {
	for _, allowed := range connectionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionPendingPayment, ConnectionPaidPendingAccept, ConnectionAccepted, ConnectionDeclined, ConnectionCanceled:
		return true
	}
	return false
}

// ParseStatusUpdate accepts the values a client may send to the status endpoint.
func ParseStatusUpdate(raw string) (ConnectionStatus, error) {
	switch s := ConnectionStatus(strings.ToUpper(strings.TrimSpace(raw))); s {
	case ConnectionAccepted, ConnectionDeclined, ConnectionCanceled:
		return s, nil
	}
	return "", ErrInvalidStatusValue
}

// OpenConnectionStatuses are the states that hold the uniqueness slot for a
// (requester, recipient, moment) triple.
var OpenConnectionStatuses = []ConnectionStatus{ConnectionPendingPayment, ConnectionPaidPendingAccept}

// Connection is a paid request from one user to open a chat with another.
type Connection struct {
	ID          uuid.UUID        `json:"id"`
	RequesterID uuid.UUID        `json:"requester_id"`
	RecipientID uuid.UUID        `json:"recipient_id"`
	MomentID    *uuid.UUID       `json:"moment_id,omitempty"`
	Status      ConnectionStatus `json:"status"`
	FeeAmount   decimal.Decimal  `json:"fee_amount"`
	PlatformCut decimal.Decimal  `json:"platform_cut"`
	PosterShare decimal.Decimal  `json:"poster_share"`
	Currency    string           `json:"currency"`
	ConfigName  string           `json:"config_name"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsParty reports whether userID is the requester or the recipient.
func (c *Connection) IsParty(userID uuid.UUID) bool {
	return c.RequesterID == userID || c.RecipientID == userID
}

// Counterparty returns the other party for userID.
func (c *Connection) Counterparty(userID uuid.UUID) uuid.UUID {
	if c.RequesterID == userID {
		return c.RecipientID
	}
	return c.RequesterID
}

// SameMoment compares optional moment references, treating two absent moments as equal.
func SameMoment(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ConnectionRole filters listings by the caller's side of the connection.
type ConnectionRole string

const (
	ConnectionRoleAny       ConnectionRole = ""
	ConnectionRoleRequester ConnectionRole = "requester"
	ConnectionRoleRecipient ConnectionRole = "recipient"
)

// ConnectionListOptions narrows a connection listing.
type ConnectionListOptions struct {
	Role   ConnectionRole
	Status ConnectionStatus
	Limit  int
	Offset int
}
