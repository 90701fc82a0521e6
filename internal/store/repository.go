/**
 * @description
 * Data access contracts for the connection service. Reads and single-row writes
 * go through Repository; multi-step state changes run inside a unit of work and
 * see only the Tx surface, so every write of one business operation commits or
 * rolls back together.
 *
 * @dependencies
 * - github.com/google/uuid: identifiers.
 * - internal/domain: the service's domain models and error kinds.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kontent/connection-service/internal/domain"
)

// UnitOfWork runs fn inside a single database transaction. fn's error aborts the
// transaction and is returned unchanged.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface used by state-changing operations. Methods
// suffixed ForUpdate take a row lock held until the unit of work ends.
type Tx interface {
	// Connection methods
	GetConnectionForUpdate(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error)
	FindOpenConnection(ctx context.Context, requesterID, recipientID uuid.UUID, momentID *uuid.UUID) (*domain.Connection, error)
	InsertConnection(ctx context.Context, conn *domain.Connection) error
	UpdateConnectionStatus(ctx context.Context, connectionID uuid.UUID, status domain.ConnectionStatus, at time.Time) error

	// Monetization config methods
	FindActiveMonetizationConfig(ctx context.Context, name string) (*domain.MonetizationConfig, error)

	// Ledger methods
	InsertTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransactionForUpdate(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionByConnectionForUpdate(ctx context.Context, connectionID uuid.UUID) (*domain.Transaction, error)
	FindTransactionByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status domain.TransactionStatus, at time.Time) error
	InsertEarning(ctx context.Context, earning *domain.Earning) error
	GetEarningForUpdate(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error)
	MarkEarningPaidOut(ctx context.Context, earningID, payoutTransactionID uuid.UUID, at time.Time) error
	MarkEarningCanceled(ctx context.Context, earningID uuid.UUID, at time.Time) error
}

// Repository is the full data access surface of the service.
type Repository interface {
	UnitOfWork

	// User directory methods
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error)
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	FindUsername(ctx context.Context, userID uuid.UUID) (string, error)

	// Connection methods
	GetConnection(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error)
	ListConnectionsByUser(ctx context.Context, userID uuid.UUID, opts domain.ConnectionListOptions) ([]domain.Connection, error)
	ListStalePendingConnectionIDs(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error)

	// Monetization config methods
	CreateMonetizationConfig(ctx context.Context, cfg *domain.MonetizationConfig) error
	GetMonetizationConfig(ctx context.Context, configID uuid.UUID) (*domain.MonetizationConfig, error)
	ListMonetizationConfigs(ctx context.Context, activeOnly bool) ([]domain.MonetizationConfig, error)
	UpdateMonetizationConfig(ctx context.Context, cfg *domain.MonetizationConfig) error

	// Ledger methods
	GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error)
	ListTransactionsByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
	ListRefundPendingTransactions(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.Transaction, error)
	GetEarning(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error)
	ListEarningsByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]domain.Earning, error)

	// Message methods
	InsertMessage(ctx context.Context, msg *domain.Message) error
	GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	ListMessagesByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]domain.Message, error)
	MarkMessageRead(ctx context.Context, messageID uuid.UUID, at time.Time) (bool, error)
}

// ClampPage normalizes list paging arguments.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
