package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

// ThreadEngine manages one level of replies under a top-level message.
type ThreadEngine struct {
	store    *MessageStore
	messages repository.MessageRepository
	access   *Access
	st       *Storage
}

func NewThreadEngine(store *MessageStore, messages repository.MessageRepository, access *Access, st *Storage) *ThreadEngine {
	return &ThreadEngine{store: store, messages: messages, access: access, st: st}
}

type ReplyInput struct {
	RootID         int64
	AuthorID       int64
	Content        string
	ContentType    domain.ContentType
	Attachments    []string
	IdempotencyKey *uuid.UUID
}

// root loads a thread root and checks access. A reply used as a root is
// rejected with ErrInvalidParent.
func (t *ThreadEngine) root(ctx context.Context, userID, rootID int64) (*domain.Message, error) {
	root, err := t.store.lookup(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, ErrNotFound
	}
	if _, err := t.access.Role(ctx, userID, root.Conversation); err != nil {
		return nil, err
	}
	if root.IsReply() {
		return nil, ErrInvalidParent
	}
	return root, nil
}

// ListReplies returns replies in id order. Deleted replies stay in place as
// tombstones so positions and counts already shown to clients hold.
func (t *ThreadEngine) ListReplies(ctx context.Context, userID, rootID int64) ([]domain.Message, error) {
	if _, err := t.root(ctx, userID, rootID); err != nil {
		return nil, err
	}
	replies, err := call(ctx, t.st, "messages.replies", true, func(c context.Context) ([]domain.Message, error) {
		return t.messages.ListReplies(c, rootID)
	})
	if err != nil {
		return nil, err
	}
	for i := range replies {
		if replies[i].IsDeleted {
			replies[i] = replies[i].Tombstone()
		}
	}
	if replies == nil {
		replies = []domain.Message{}
	}
	return replies, nil
}

func (t *ThreadEngine) Reply(ctx context.Context, in ReplyInput) (*domain.Message, bool, error) {
	root, err := t.store.lookup(ctx, in.RootID)
	if err != nil {
		return nil, false, err
	}
	if root == nil {
		return nil, false, ErrInvalidParent
	}
	parentID := root.ID
	return t.store.Append(ctx, AppendInput{
		Conversation:   root.Conversation,
		AuthorID:       in.AuthorID,
		Content:        in.Content,
		ContentType:    in.ContentType,
		ParentID:       &parentID,
		Attachments:    in.Attachments,
		IdempotencyKey: in.IdempotencyKey,
	})
}

// Summarize counts only live replies; ReplyIDs keeps tombstones in order.
func (t *ThreadEngine) Summarize(ctx context.Context, userID, rootID int64) (*domain.ThreadSummary, error) {
	replies, err := t.ListReplies(ctx, userID, rootID)
	if err != nil {
		return nil, err
	}
	sum := &domain.ThreadSummary{RootID: rootID, ReplyIDs: make([]int64, 0, len(replies))}
	for _, r := range replies {
		sum.ReplyIDs = append(sum.ReplyIDs, r.ID)
		if r.IsDeleted {
			continue
		}
		sum.ReplyCount++
		at := r.CreatedAt
		if sum.LastReplyAt == nil || at.After(*sum.LastReplyAt) {
			sum.LastReplyAt = &at
		}
	}
	return sum, nil
}
