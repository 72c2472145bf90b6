package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedran77/pulsecore/internal/domain"
)

// ConversationRepo reads the heads that MessageRepo maintains.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

const headQuery = `
	SELECT c.conv_key, c.last_message_id, c.last_message_at, m.author_id, m.content
	FROM conversations c
	JOIN messages m ON m.id = c.last_message_id`

func (r *ConversationRepo) GetHead(ctx context.Context, ref domain.ConversationRef) (*domain.ConversationHead, error) {
	rows, err := r.pool.Query(ctx, headQuery+` WHERE c.conv_key = $1`, ref.Key())
	if err != nil {
		return nil, err
	}
	heads, err := scanHeads(rows)
	if err != nil || len(heads) == 0 {
		return nil, err
	}
	return &heads[0], nil
}

func (r *ConversationRepo) GetHeads(ctx context.Context, refs []domain.ConversationRef) (map[string]domain.ConversationHead, error) {
	out := make(map[string]domain.ConversationHead, len(refs))
	if len(refs) == 0 {
		return out, nil
	}
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = ref.Key()
	}

	rows, err := r.pool.Query(ctx, headQuery+` WHERE c.conv_key = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	heads, err := scanHeads(rows)
	if err != nil {
		return nil, err
	}
	for _, h := range heads {
		out[h.Ref.Key()] = h
	}
	return out, nil
}

func (r *ConversationRepo) ListDirectHeads(ctx context.Context, userID int64) ([]domain.ConversationHead, error) {
	rows, err := r.pool.Query(ctx, headQuery+`
		WHERE c.kind = 'direct' AND (c.user_a = $1 OR c.user_b = $1)
		ORDER BY c.last_message_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return scanHeads(rows)
}

func scanHeads(rows pgx.Rows) ([]domain.ConversationHead, error) {
	defer rows.Close()
	heads := []domain.ConversationHead{}
	for rows.Next() {
		var (
			h   domain.ConversationHead
			key string
		)
		if err := rows.Scan(&key, &h.LastMessageID, &h.LastMessageAt, &h.LastAuthorID, &h.LastContent); err != nil {
			return nil, err
		}
		ref, err := domain.ParseConversationKey(key)
		if err != nil {
			return nil, err
		}
		h.Ref = ref
		heads = append(heads, h)
	}
	return heads, rows.Err()
}
