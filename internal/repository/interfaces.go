package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vedran77/pulsecore/internal/domain"
)

// ErrNotFound is returned by mutations addressed at a missing row.
// Lookups return nil, nil instead.
var ErrNotFound = errors.New("not found")

type MessageRepository interface {
	// Append allocates the id, inserts msg and, for top-level messages, advances the
	// conversation head, all as one atomic unit serialized per conversation.
	// When msg carries an idempotency key already used by the same author in the
	// same conversation, the stored message is returned with created == false.
	Append(ctx context.Context, msg *domain.Message) (stored *domain.Message, created bool, err error)
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	// UpdateContent replaces the content and appends the prior content to the edit history.
	UpdateContent(ctx context.Context, id, editorID int64, content string, editedAt time.Time) (*domain.Message, error)
	// SoftDelete flags the message and recomputes the conversation head in the same unit.
	SoftDelete(ctx context.Context, id int64) error
	SetPinned(ctx context.Context, id int64, pinned bool) error
	AddReaction(ctx context.Context, id, userID int64, emoji string) error
	RemoveReaction(ctx context.Context, id, userID int64, emoji string) error

	// ListTimeline returns up to q.Limit top-level, non-deleted messages in ascending id order.
	ListTimeline(ctx context.Context, ref domain.ConversationRef, q domain.TimelineQuery) ([]domain.Message, error)
	// ListReplies returns every reply of rootID, deleted ones included, in ascending id order.
	ListReplies(ctx context.Context, rootID int64) ([]domain.Message, error)
	ListPinned(ctx context.Context, ref domain.ConversationRef) ([]domain.Message, error)
	ListEdits(ctx context.Context, id int64) ([]domain.MessageEdit, error)
	// CountAfter counts top-level, non-deleted messages with id > afterID not authored by excludeAuthor.
	CountAfter(ctx context.Context, ref domain.ConversationRef, afterID, excludeAuthor int64) (int64, error)
}

type ConversationRepository interface {
	GetHead(ctx context.Context, ref domain.ConversationRef) (*domain.ConversationHead, error)
	GetHeads(ctx context.Context, refs []domain.ConversationRef) (map[string]domain.ConversationHead, error)
	// ListDirectHeads returns the live direct conversations userID takes part in.
	ListDirectHeads(ctx context.Context, userID int64) ([]domain.ConversationHead, error)
}

type ReadCursorRepository interface {
	Get(ctx context.Context, userID int64, conversationKey string) (*domain.ReadCursor, error)
	// Advance moves the cursor forward only; it reports whether the stored value changed.
	Advance(ctx context.Context, userID int64, conversationKey string, messageID int64, at time.Time) (bool, error)
}

// MembershipProvider is owned by the team/channel subsystem.
type MembershipProvider interface {
	IsMember(ctx context.Context, userID int64, ref domain.ConversationRef) (bool, error)
	// Role returns domain.RoleNone when userID has no access.
	Role(ctx context.Context, userID int64, ref domain.ConversationRef) (domain.Role, error)
	ChannelsForUser(ctx context.Context, userID int64) ([]domain.ChannelInfo, error)
}

type IdentityProvider interface {
	Profiles(ctx context.Context, userIDs []int64) (map[int64]domain.Profile, error)
}
