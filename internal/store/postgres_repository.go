package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kontent/connection-service/internal/domain"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries holds the SQL shared by pool-level and transactional access.
type queries struct {
	db dbtx
}

// PostgresRepository is the PostgreSQL implementation of Repository.
type PostgresRepository struct {
	queries
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{queries: queries{db: pool}, pool: pool}
}

// postgresTx is the Tx handed to units of work.
type postgresTx struct {
	queries
}

// WithinTx runs fn inside a transaction, committing only when fn returns nil.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{queries: queries{db: tx}}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

// Unique constraint names from db/migrations, mapped to the domain conflict they signal.
var uniqueViolations = map[string]error{
	"connections_open_triple_key":          domain.ErrOpenConnectionExists,
	"transactions_connection_id_key":       domain.ErrDuplicateLedgerEntry,
	"earnings_connection_id_key":           domain.ErrDuplicateLedgerEntry,
	"transactions_external_id_key":         domain.ErrDuplicatePaymentRef,
	"monetization_configs_config_name_key": domain.ErrConfigNameTaken,
}

// translateError maps PostgreSQL unique violations onto domain conflict errors
// and check violations onto validation errors.
func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if mapped, ok := uniqueViolations[pgErr.ConstraintName]; ok {
			return mapped
		}
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return &domain.ValidationError{Field: pgErr.ConstraintName, Reason: "violates a storage check"}
	}
	return err
}

const connectionColumns = `
    id, requester_id, recipient_id, moment_id, status,
    fee_amount, platform_cut, poster_share, currency, config_name,
    created_at, updated_at`

func scanConnection(row pgx.Row) (*domain.Connection, error) {
	var c domain.Connection
	err := row.Scan(
		&c.ID,
		&c.RequesterID,
		&c.RecipientID,
		&c.MomentID,
		&c.Status,
		&c.FeeAmount,
		&c.PlatformCut,
		&c.PosterShare,
		&c.Currency,
		&c.ConfigName,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (q queries) getConnection(ctx context.Context, connectionID uuid.UUID, lock bool) (*domain.Connection, error) {
	query := "SELECT" + connectionColumns + " FROM connections WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	conn, err := scanConnection(q.db.QueryRow(ctx, query, connectionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	return conn, nil
}

// GetConnection retrieves a connection by id.
func (q queries) GetConnection(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	return q.getConnection(ctx, connectionID, false)
}

// GetConnectionForUpdate retrieves a connection and locks its row.
func (q queries) GetConnectionForUpdate(ctx context.Context, connectionID uuid.UUID) (*domain.Connection, error) {
	return q.getConnection(ctx, connectionID, true)
}

// FindOpenConnection returns the non-terminal connection for the triple, or
// ErrConnectionNotFound. A missing moment only matches another missing moment.
func (q queries) FindOpenConnection(ctx context.Context, requesterID, recipientID uuid.UUID, momentID *uuid.UUID) (*domain.Connection, error) {
	query := "SELECT" + connectionColumns + `
        FROM connections
        WHERE requester_id = $1
          AND recipient_id = $2
          AND moment_id IS NOT DISTINCT FROM $3
          AND status IN ('PENDING_PAYMENT', 'PAID_PENDING_ACCEPT')
        ORDER BY created_at DESC
        LIMIT 1
        FOR UPDATE`
	conn, err := scanConnection(q.db.QueryRow(ctx, query, requesterID, recipientID, momentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConnectionNotFound
		}
		return nil, err
	}
	return conn, nil
}

// InsertConnection stores a new connection.
func (q queries) InsertConnection(ctx context.Context, c *domain.Connection) error {
	query := `
        INSERT INTO connections (
            id, requester_id, recipient_id, moment_id, status,
            fee_amount, platform_cut, poster_share, currency, config_name,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`
	_, err := q.db.Exec(ctx, query,
		c.ID,
		c.RequesterID,
		c.RecipientID,
		c.MomentID,
		c.Status,
		c.FeeAmount,
		c.PlatformCut,
		c.PosterShare,
		c.Currency,
		c.ConfigName,
		c.CreatedAt,
	)
	return translateError(err)
}

// UpdateConnectionStatus moves a connection to status.
func (q queries) UpdateConnectionStatus(ctx context.Context, connectionID uuid.UUID, status domain.ConnectionStatus, at time.Time) error {
	tag, err := q.db.Exec(ctx, "UPDATE connections SET status = $2, updated_at = $3 WHERE id = $1", connectionID, status, at)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// ListConnectionsByUser lists connections where the user is a party, newest first.
func (q queries) ListConnectionsByUser(ctx context.Context, userID uuid.UUID, opts domain.ConnectionListOptions) ([]domain.Connection, error) {
	limit, offset := ClampPage(opts.Limit, opts.Offset)

	query := "SELECT" + connectionColumns + " FROM connections WHERE "
	switch opts.Role {
	case domain.ConnectionRoleRequester:
		query += "requester_id = $1"
	case domain.ConnectionRoleRecipient:
		query += "recipient_id = $1"
	default:
		query += "(requester_id = $1 OR recipient_id = $1)"
	}

	args := []interface{}{userID}
	argPos := 2
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, opts.Status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var connections []domain.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		connections = append(connections, *c)
	}
	return connections, rows.Err()
}

// ListStalePendingConnectionIDs returns unpaid connections created before the cutoff.
func (q queries) ListStalePendingConnectionIDs(ctx context.Context, createdBefore time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
        SELECT id FROM connections
        WHERE status = 'PENDING_PAYMENT' AND created_at < $1
        ORDER BY created_at
        LIMIT $2`, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FindUserIDByClerkUserID resolves the internal UUID from a Clerk user id.
func (q queries) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, "SELECT id FROM users WHERE clerk_user_id = $1", clerkUserID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, domain.ErrUserNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// UserExists reports whether a user row exists.
func (q queries) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", userID).Scan(&exists)
	return exists, err
}

// FindUsername returns the trimmed username for a user.
func (q queries) FindUsername(ctx context.Context, userID uuid.UUID) (string, error) {
	var username *string
	err := q.db.QueryRow(ctx, "SELECT username FROM users WHERE id = $1", userID).Scan(&username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrUserNotFound
		}
		return "", err
	}
	if username == nil {
		return "", nil
	}
	return strings.TrimSpace(*username), nil
}
