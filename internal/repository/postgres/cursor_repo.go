package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedran77/pulsecore/internal/domain"
)

type ReadCursorRepo struct {
	pool *pgxpool.Pool
}

func NewReadCursorRepo(pool *pgxpool.Pool) *ReadCursorRepo {
	return &ReadCursorRepo{pool: pool}
}

func (r *ReadCursorRepo) Get(ctx context.Context, userID int64, conversationKey string) (*domain.ReadCursor, error) {
	var c domain.ReadCursor
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, conv_key, last_read_message_id, updated_at
		FROM read_cursors
		WHERE user_id = $1 AND conv_key = $2`, userID, conversationKey,
	).Scan(&c.UserID, &c.ConversationKey, &c.LastReadMessageID, &c.UpdatedAt)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Advance is a single compare-and-set upsert: the conflict branch only
// writes when the new id is ahead of the stored one.
func (r *ReadCursorRepo) Advance(ctx context.Context, userID int64, conversationKey string, messageID int64, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO read_cursors (user_id, conv_key, last_read_message_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, conv_key) DO UPDATE
			SET last_read_message_id = EXCLUDED.last_read_message_id,
				updated_at = EXCLUDED.updated_at
			WHERE read_cursors.last_read_message_id < EXCLUDED.last_read_message_id`,
		userID, conversationKey, messageID, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
