package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vedran77/pulsecore/internal/domain"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const messageColumns = `m.id, m.conv_key, m.author_id, m.parent_id, m.content, m.content_type,
	m.attachments, m.is_pinned, m.is_edited, m.is_deleted, m.idempotency_key, m.edited_at, m.created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg         domain.Message
		key         string
		attachments []byte
	)
	if err := row.Scan(
		&msg.ID, &key, &msg.AuthorID, &msg.ParentID, &msg.Content, &msg.ContentType,
		&attachments, &msg.IsPinned, &msg.IsEdited, &msg.IsDeleted, &msg.IdempotencyKey,
		&msg.EditedAt, &msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	ref, err := domain.ParseConversationKey(key)
	if err != nil {
		return nil, err
	}
	msg.Conversation = ref
	msg.Attachments = []string{}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &msg.Attachments); err != nil {
			return nil, err
		}
	}
	msg.Reactions = map[string][]int64{}
	return &msg, nil
}

func scanMessages(rows pgx.Rows) ([]domain.Message, error) {
	defer rows.Close()
	messages := []domain.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// loadReactions fills Reactions for every message in one query.
func loadReactions(ctx context.Context, q querier, messages []domain.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids := make([]int64, len(messages))
	index := make(map[int64]int, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		index[m.ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT message_id, emoji, user_id
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY message_id, emoji, user_id`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, userID int64
			emoji      string
		)
		if err := rows.Scan(&id, &emoji, &userID); err != nil {
			return err
		}
		m := &messages[index[id]]
		m.Reactions[emoji] = append(m.Reactions[emoji], userID)
	}
	return rows.Err()
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isForeignKeyViolation matches SQLSTATE 23503.
func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// conversationColumns splits a ref into the nullable conversations columns.
func conversationColumns(ref domain.ConversationRef) (channelID, userA, userB *int64) {
	if ref.IsDirect() {
		a, b := ref.UserA, ref.UserB
		return nil, &a, &b
	}
	id := ref.ChannelID
	return &id, nil, nil
}
