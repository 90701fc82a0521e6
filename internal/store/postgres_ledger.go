package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kontent/connection-service/internal/domain"
)

const monetizationConfigColumns = `
    id, config_name, fee_base, platform_cut_percentage, poster_share_percentage,
    currency, is_active, created_at, updated_at`

func scanMonetizationConfig(row pgx.Row) (*domain.MonetizationConfig, error) {
	var c domain.MonetizationConfig
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.FeeBase,
		&c.PlatformCutPct,
		&c.PosterSharePct,
		&c.Currency,
		&c.IsActive,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindActiveMonetizationConfig returns the active config with name.
func (q queries) FindActiveMonetizationConfig(ctx context.Context, name string) (*domain.MonetizationConfig, error) {
	query := "SELECT" + monetizationConfigColumns + " FROM monetization_configs WHERE config_name = $1 AND is_active"
	cfg, err := scanMonetizationConfig(q.db.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// GetMonetizationConfig retrieves a config by id regardless of its active flag.
func (q queries) GetMonetizationConfig(ctx context.Context, configID uuid.UUID) (*domain.MonetizationConfig, error) {
	query := "SELECT" + monetizationConfigColumns + " FROM monetization_configs WHERE id = $1"
	cfg, err := scanMonetizationConfig(q.db.QueryRow(ctx, query, configID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConfigNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// ListMonetizationConfigs lists configs by name, optionally only active ones.
func (q queries) ListMonetizationConfigs(ctx context.Context, activeOnly bool) ([]domain.MonetizationConfig, error) {
	query := "SELECT" + monetizationConfigColumns + " FROM monetization_configs"
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY config_name"

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []domain.MonetizationConfig
	for rows.Next() {
		cfg, err := scanMonetizationConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// CreateMonetizationConfig stores a new config.
func (q queries) CreateMonetizationConfig(ctx context.Context, cfg *domain.MonetizationConfig) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO monetization_configs (
            id, config_name, fee_base, platform_cut_percentage, poster_share_percentage,
            currency, is_active, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		cfg.ID, cfg.Name, cfg.FeeBase, cfg.PlatformCutPct, cfg.PosterSharePct,
		cfg.Currency, cfg.IsActive, cfg.CreatedAt,
	)
	return translateError(err)
}

// UpdateMonetizationConfig overwrites a config's mutable fields.
func (q queries) UpdateMonetizationConfig(ctx context.Context, cfg *domain.MonetizationConfig) error {
	tag, err := q.db.Exec(ctx, `
        UPDATE monetization_configs
        SET config_name = $2,
            fee_base = $3,
            platform_cut_percentage = $4,
            poster_share_percentage = $5,
            currency = $6,
            is_active = $7,
            updated_at = $8
        WHERE id = $1`,
		cfg.ID, cfg.Name, cfg.FeeBase, cfg.PlatformCutPct, cfg.PosterSharePct,
		cfg.Currency, cfg.IsActive, cfg.UpdatedAt,
	)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConfigNotFound
	}
	return nil
}

const transactionColumns = `
    id, user_id, connection_id, amount, currency, status, payment_method,
    external_id, transaction_date, refund_requested_at, refunded_at, updated_at`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID,
		&t.PayerID,
		&t.ConnectionID,
		&t.Amount,
		&t.Currency,
		&t.Status,
		&t.PaymentMethod,
		&t.ExternalID,
		&t.TransactionDate,
		&t.RefundRequestedAt,
		&t.RefundedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (q queries) findTransaction(ctx context.Context, where string, arg any, lock bool) (*domain.Transaction, error) {
	query := "SELECT" + transactionColumns + " FROM transactions WHERE " + where
	if lock {
		query += " FOR UPDATE"
	}
	txn, err := scanTransaction(q.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return txn, nil
}

// InsertTransaction records a payment ledger row.
func (q queries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO transactions (
            id, user_id, connection_id, amount, currency, status, payment_method,
            external_id, transaction_date, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		t.ID, t.PayerID, t.ConnectionID, t.Amount, t.Currency, t.Status, t.PaymentMethod,
		t.ExternalID, t.TransactionDate,
	)
	return translateError(err)
}

// GetTransaction retrieves a transaction by id.
func (q queries) GetTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return q.findTransaction(ctx, "id = $1", transactionID, false)
}

// GetTransactionForUpdate retrieves a transaction by id and locks it.
func (q queries) GetTransactionForUpdate(ctx context.Context, transactionID uuid.UUID) (*domain.Transaction, error) {
	return q.findTransaction(ctx, "id = $1", transactionID, true)
}

// FindTransactionByConnectionForUpdate returns the payment recorded for a connection.
func (q queries) FindTransactionByConnectionForUpdate(ctx context.Context, connectionID uuid.UUID) (*domain.Transaction, error) {
	return q.findTransaction(ctx, "connection_id = $1", connectionID, true)
}

// FindTransactionByExternalIDForUpdate returns the payment with a provider reference.
func (q queries) FindTransactionByExternalIDForUpdate(ctx context.Context, externalID string) (*domain.Transaction, error) {
	return q.findTransaction(ctx, "external_id = $1", externalID, true)
}

// UpdateTransactionStatus moves a transaction to status, stamping the refund
// timestamps as the refund progresses.
func (q queries) UpdateTransactionStatus(ctx context.Context, transactionID uuid.UUID, status domain.TransactionStatus, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
        UPDATE transactions
        SET status = $2,
            refund_requested_at = CASE WHEN $2 = 'REFUND_PENDING' THEN $3 ELSE refund_requested_at END,
            refunded_at = CASE WHEN $2 = 'REFUNDED' THEN $3 ELSE refunded_at END,
            updated_at = $3
        WHERE id = $1`, transactionID, status, at)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}
	return nil
}

// ListTransactionsByPayer lists a payer's transactions, newest first.
func (q queries) ListTransactionsByPayer(ctx context.Context, payerID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	limit, offset = ClampPage(limit, offset)
	rows, err := q.db.Query(ctx, "SELECT"+transactionColumns+`
        FROM transactions
        WHERE user_id = $1
        ORDER BY transaction_date DESC
        LIMIT $2 OFFSET $3`, payerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// ListRefundPendingTransactions lists refunds requested before the cutoff that
// have not completed.
func (q queries) ListRefundPendingTransactions(ctx context.Context, requestedBefore time.Time, limit int) ([]domain.Transaction, error) {
	rows, err := q.db.Query(ctx, "SELECT"+transactionColumns+`
        FROM transactions
        WHERE status = 'REFUND_PENDING' AND refund_requested_at < $1
        ORDER BY refund_requested_at
        LIMIT $2`, requestedBefore, limit)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var transactions []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	return transactions, rows.Err()
}

const earningColumns = `
    id, user_id, connection_id, amount, currency, status, created_at,
    paid_out_at, canceled_at, payout_transaction_id`

func scanEarning(row pgx.Row) (*domain.Earning, error) {
	var e domain.Earning
	err := row.Scan(
		&e.ID,
		&e.RecipientID,
		&e.ConnectionID,
		&e.Amount,
		&e.Currency,
		&e.Status,
		&e.CreatedAt,
		&e.PaidOutAt,
		&e.CanceledAt,
		&e.PayoutTransactionID,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertEarning records a recipient's share.
func (q queries) InsertEarning(ctx context.Context, e *domain.Earning) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO earnings (id, user_id, connection_id, amount, currency, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.RecipientID, e.ConnectionID, e.Amount, e.Currency, e.Status, e.CreatedAt,
	)
	return translateError(err)
}

func (q queries) getEarning(ctx context.Context, earningID uuid.UUID, lock bool) (*domain.Earning, error) {
	query := "SELECT" + earningColumns + " FROM earnings WHERE id = $1"
	if lock {
		query += " FOR UPDATE"
	}
	e, err := scanEarning(q.db.QueryRow(ctx, query, earningID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEarningNotFound
		}
		return nil, err
	}
	return e, nil
}

// GetEarning retrieves an earning by id.
func (q queries) GetEarning(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error) {
	return q.getEarning(ctx, earningID, false)
}

// GetEarningForUpdate retrieves an earning by id and locks it.
func (q queries) GetEarningForUpdate(ctx context.Context, earningID uuid.UUID) (*domain.Earning, error) {
	return q.getEarning(ctx, earningID, true)
}

// MarkEarningPaidOut settles an earning against a payout transaction.
func (q queries) MarkEarningPaidOut(ctx context.Context, earningID, payoutTransactionID uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
        UPDATE earnings
        SET status = 'PAID_OUT', paid_out_at = $3, payout_transaction_id = $2
        WHERE id = $1`, earningID, payoutTransactionID, at)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEarningNotFound
	}
	return nil
}

// MarkEarningCanceled withdraws an unpaid earning.
func (q queries) MarkEarningCanceled(ctx context.Context, earningID uuid.UUID, at time.Time) error {
	tag, err := q.db.Exec(ctx, `
        UPDATE earnings
        SET status = 'CANCELED', canceled_at = $2
        WHERE id = $1`, earningID, at)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEarningNotFound
	}
	return nil
}

// ListEarningsByRecipient lists a recipient's earnings, newest first.
func (q queries) ListEarningsByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]domain.Earning, error) {
	limit, offset = ClampPage(limit, offset)
	rows, err := q.db.Query(ctx, "SELECT"+earningColumns+`
        FROM earnings
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`, recipientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []domain.Earning
	for rows.Next() {
		e, err := scanEarning(rows)
		if err != nil {
			return nil, err
		}
		earnings = append(earnings, *e)
	}
	return earnings, rows.Err()
}
