package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// Append locks the conversation row for the whole transaction, so id
// allocation and the head update are serialized per conversation.
func (r *MessageRepo) Append(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	attachments, err := json.Marshal(nonNil(msg.Attachments))
	if err != nil {
		return nil, false, err
	}
	key := msg.Conversation.Key()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	channelID, userA, userB := conversationColumns(msg.Conversation)
	if _, err := tx.Exec(ctx, `
		INSERT INTO conversations (conv_key, kind, channel_id, user_a, user_b)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conv_key) DO UPDATE SET conv_key = EXCLUDED.conv_key`,
		key, msg.Conversation.Kind, channelID, userA, userB,
	); err != nil {
		return nil, false, fmt.Errorf("locking conversation: %w", err)
	}

	if msg.IdempotencyKey != nil {
		existing, err := scanMessage(tx.QueryRow(ctx, `
			SELECT `+messageColumns+`
			FROM messages m
			WHERE m.conv_key = $1 AND m.author_id = $2 AND m.idempotency_key = $3`,
			key, msg.AuthorID, *msg.IdempotencyKey,
		))
		switch {
		case err == nil:
			list := []domain.Message{*existing}
			if err := loadReactions(ctx, tx, list); err != nil {
				return nil, false, err
			}
			return &list[0], false, tx.Commit(ctx)
		case !isNoRows(err):
			return nil, false, err
		}
	}

	stored := msg.Clone()
	if err := tx.QueryRow(ctx, `
		INSERT INTO messages (conv_key, author_id, parent_id, content, content_type, attachments, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
		RETURNING id`,
		key, msg.AuthorID, msg.ParentID, msg.Content, msg.ContentType, string(attachments), msg.IdempotencyKey, msg.CreatedAt,
	).Scan(&stored.ID); err != nil {
		return nil, false, fmt.Errorf("inserting message: %w", err)
	}

	if msg.ParentID == nil {
		if _, err := tx.Exec(ctx,
			`UPDATE conversations SET last_message_id = $2, last_message_at = $3 WHERE conv_key = $1`,
			key, stored.ID, stored.CreatedAt,
		); err != nil {
			return nil, false, fmt.Errorf("updating conversation head: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	msg, err := scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list := []domain.Message{*msg}
	if err := loadReactions(ctx, r.pool, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// UpdateContent edits a live message. The row lock orders it against a
// concurrent SoftDelete; once deleted, the message is no longer editable.
func (r *MessageRepo) UpdateContent(ctx context.Context, id, editorID int64, content string, editedAt time.Time) (*domain.Message, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var previous string
	err = tx.QueryRow(ctx, `SELECT content FROM messages WHERE id = $1 AND NOT is_deleted FOR NO KEY UPDATE`, id).Scan(&previous)
	if isNoRows(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO message_edits (message_id, editor_id, content, replaced_at) VALUES ($1, $2, $3, $4)`,
		id, editorID, previous, editedAt,
	); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE messages SET content = $2, is_edited = TRUE, edited_at = $3 WHERE id = $1 AND NOT is_deleted`,
		id, content, editedAt,
	); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// SoftDelete flags the message and, for a top-level message, moves the
// conversation head back to the newest remaining one (or NULL).
func (r *MessageRepo) SoftDelete(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var (
		key      string
		parentID *int64
		deleted  bool
	)
	err = tx.QueryRow(ctx, `SELECT conv_key, parent_id, is_deleted FROM messages WHERE id = $1`, id).Scan(&key, &parentID, &deleted)
	if isNoRows(err) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}

	if _, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE conv_key = $1 FOR UPDATE`, key); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id = $1`, id); err != nil {
		return err
	}
	if parentID == nil {
		if _, err := tx.Exec(ctx, `
			UPDATE conversations c SET (last_message_id, last_message_at) = (
				SELECT m.id, m.created_at
				FROM messages m
				WHERE m.conv_key = c.conv_key AND m.parent_id IS NULL AND NOT m.is_deleted
				ORDER BY m.id DESC
				LIMIT 1
			)
			WHERE c.conv_key = $1`, key); err != nil {
			return fmt.Errorf("recomputing conversation head: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *MessageRepo) SetPinned(ctx context.Context, id int64, pinned bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE messages SET is_pinned = $2 WHERE id = $1`, id, pinned)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) AddReaction(ctx context.Context, id, userID int64, emoji string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO message_reactions (message_id, emoji, user_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, id, emoji, userID)
	if isForeignKeyViolation(err) {
		return repository.ErrNotFound
	}
	return err
}

func (r *MessageRepo) RemoveReaction(ctx context.Context, id, userID int64, emoji string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM message_reactions WHERE message_id = $1 AND emoji = $2 AND user_id = $3`,
		id, emoji, userID)
	return err
}

func (r *MessageRepo) ListTimeline(ctx context.Context, ref domain.ConversationRef, q domain.TimelineQuery) ([]domain.Message, error) {
	var rows pgx.Rows
	var err error
	if q.Direction == domain.Forward {
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages m
			WHERE m.conv_key = $1 AND m.parent_id IS NULL AND NOT m.is_deleted AND m.id > $2
			ORDER BY m.id ASC
			LIMIT $3`, ref.Key(), q.Boundary, q.Limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM messages m
			WHERE m.conv_key = $1 AND m.parent_id IS NULL AND NOT m.is_deleted
				AND ($2::bigint = 0 OR m.id < $2)
			ORDER BY m.id DESC
			LIMIT $3`, ref.Key(), q.Boundary, q.Limit)
	}
	if err != nil {
		return nil, err
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	// Backward pages come out newest first.
	if q.Direction != domain.Forward {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, loadReactions(ctx, r.pool, messages)
}

func (r *MessageRepo) ListReplies(ctx context.Context, rootID int64) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.parent_id = $1
		ORDER BY m.id ASC`, rootID)
	if err != nil {
		return nil, err
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return messages, loadReactions(ctx, r.pool, messages)
}

func (r *MessageRepo) ListPinned(ctx context.Context, ref domain.ConversationRef) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.conv_key = $1 AND m.is_pinned AND NOT m.is_deleted AND m.parent_id IS NULL
		ORDER BY m.id ASC`, ref.Key())
	if err != nil {
		return nil, err
	}
	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return messages, loadReactions(ctx, r.pool, messages)
}

func (r *MessageRepo) ListEdits(ctx context.Context, id int64) ([]domain.MessageEdit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT message_id, editor_id, content, replaced_at
		FROM message_edits
		WHERE message_id = $1
		ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	edits := []domain.MessageEdit{}
	for rows.Next() {
		var e domain.MessageEdit
		if err := rows.Scan(&e.MessageID, &e.EditorID, &e.Content, &e.ReplacedAt); err != nil {
			return nil, err
		}
		edits = append(edits, e)
	}
	return edits, rows.Err()
}

// CountAfter runs on the (conv_key, id) partial index.
func (r *MessageRepo) CountAfter(ctx context.Context, ref domain.ConversationRef, afterID, excludeAuthor int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM messages
		WHERE conv_key = $1 AND parent_id IS NULL AND NOT is_deleted
			AND id > $2 AND author_id <> $3`,
		ref.Key(), afterID, excludeAuthor,
	).Scan(&n)
	return n, err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
