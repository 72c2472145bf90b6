package service

import (
	"context"
	"time"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/metrics"
	"github.com/vedran77/pulsecore/internal/repository"
)

// ReadStateTracker owns the per-user read cursors.
type ReadStateTracker struct {
	cursors       repository.ReadCursorRepository
	conversations repository.ConversationRepository
	store         *MessageStore
	index         *ConversationIndex
	access        *Access
	st            *Storage
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewReadStateTracker(
	cursors repository.ReadCursorRepository,
	conversations repository.ConversationRepository,
	store *MessageStore,
	index *ConversationIndex,
	access *Access,
	st *Storage,
	m *metrics.Metrics,
) *ReadStateTracker {
	return &ReadStateTracker{
		cursors:       cursors,
		conversations: conversations,
		store:         store,
		index:         index,
		access:        access,
		st:            st,
		metrics:       m,
		now:           time.Now,
	}
}

// MarkRead moves the cursor to upTo when that is ahead of the stored value.
// A stale or duplicate receipt is a successful no-op; advanced reports
// whether the cursor moved.
func (r *ReadStateTracker) MarkRead(ctx context.Context, userID int64, ref domain.ConversationRef, upTo int64) (bool, error) {
	if _, err := r.access.Role(ctx, userID, ref); err != nil {
		return false, err
	}
	msg, err := r.store.lookup(ctx, upTo)
	if err != nil {
		return false, err
	}
	if msg == nil || msg.Conversation != ref {
		return false, ErrNotFound
	}
	return r.advance(ctx, userID, ref, upTo)
}

// MarkAllRead advances the cursor to the conversation's newest live message.
// It returns the resulting boundary, or 0 when the conversation is empty.
func (r *ReadStateTracker) MarkAllRead(ctx context.Context, userID int64, ref domain.ConversationRef) (int64, error) {
	if _, err := r.access.Role(ctx, userID, ref); err != nil {
		return 0, err
	}
	head, err := call(ctx, r.st, "conversations.head", true, func(c context.Context) (*domain.ConversationHead, error) {
		return r.conversations.GetHead(c, ref)
	})
	if err != nil || head == nil {
		return 0, err
	}
	if _, err := r.advance(ctx, userID, ref, head.LastMessageID); err != nil {
		return 0, err
	}
	return head.LastMessageID, nil
}

func (r *ReadStateTracker) advance(ctx context.Context, userID int64, ref domain.ConversationRef, upTo int64) (bool, error) {
	advanced, err := call(ctx, r.st, "cursors.advance", true, func(c context.Context) (bool, error) {
		return r.cursors.Advance(c, userID, ref.Key(), upTo, r.now().UTC())
	})
	if err != nil {
		return false, err
	}
	if advanced {
		r.metrics.ReadAdvanced()
	}
	return advanced, nil
}

// Cursor returns the last read message id, or nil when nothing was read yet.
func (r *ReadStateTracker) Cursor(ctx context.Context, userID int64, ref domain.ConversationRef) (*int64, error) {
	if _, err := r.access.Role(ctx, userID, ref); err != nil {
		return nil, err
	}
	cur, err := call(ctx, r.st, "cursors.get", true, func(c context.Context) (*domain.ReadCursor, error) {
		return r.cursors.Get(c, userID, ref.Key())
	})
	if err != nil || cur == nil {
		return nil, err
	}
	id := cur.LastReadMessageID
	return &id, nil
}

func (r *ReadStateTracker) UnreadCount(ctx context.Context, userID int64, ref domain.ConversationRef) (int64, error) {
	if _, err := r.access.Role(ctx, userID, ref); err != nil {
		return 0, err
	}
	return r.index.unreadCount(ctx, userID, ref)
}
