package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kontent/connection-service/internal/domain"
)

const messageColumns = `id, connection_id, sender_id, text, is_read, read_at, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var m domain.Message
	if err := row.Scan(&m.ID, &m.ConnectionID, &m.SenderID, &m.Text, &m.IsRead, &m.ReadAt, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage stores a new message.
func (q queries) InsertMessage(ctx context.Context, m *domain.Message) error {
	_, err := q.db.Exec(ctx, `
        INSERT INTO messages (id, connection_id, sender_id, text, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.ConnectionID, m.SenderID, m.Text, m.IsRead, m.CreatedAt,
	)
	return translateError(err)
}

// GetMessage retrieves a message by id.
func (q queries) GetMessage(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	m, err := scanMessage(q.db.QueryRow(ctx, "SELECT "+messageColumns+" FROM messages WHERE id = $1", messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// ListMessagesByConnection lists a conversation oldest first.
func (q queries) ListMessagesByConnection(ctx context.Context, connectionID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	limit, offset = ClampPage(limit, offset)
	rows, err := q.db.Query(ctx, "SELECT "+messageColumns+`
        FROM messages
        WHERE connection_id = $1
        ORDER BY created_at, id
        LIMIT $2 OFFSET $3`, connectionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *m)
	}
	return messages, rows.Err()
}

// MarkMessageRead flags a message as read. It reports false when the message was
// already read.
func (q queries) MarkMessageRead(ctx context.Context, messageID uuid.UUID, at time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx, "UPDATE messages SET is_read = TRUE, read_at = $2 WHERE id = $1 AND NOT is_read", messageID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
