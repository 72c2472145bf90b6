// Package events carries committed messaging changes to whatever transport
// layer is listening. Nothing here pushes to clients directly.
package events

import (
	"context"
	"time"

	"github.com/vedran77/pulsecore/internal/domain"
)

const (
	TypeMessageNew      = "message.new"
	TypeMessageEdited   = "message.edited"
	TypeMessageDeleted  = "message.deleted"
	TypeMessagePinned   = "message.pinned"
	TypeMessageUnpinned = "message.unpinned"
	TypeReactionAdded   = "reaction.added"
	TypeReactionRemoved = "reaction.removed"
	TypeReadAdvanced    = "read.advanced"
)

// Event is the envelope published after a storage effect committed.
type Event struct {
	Type         string          `json:"type"`
	Conversation string          `json:"conversation"`
	MessageID    int64           `json:"message_id,omitempty"`
	ParentID     *int64          `json:"parent_id,omitempty"`
	ActorID      int64           `json:"actor_id"`
	Emoji        string          `json:"emoji,omitempty"`
	Message      *domain.Message `json:"message,omitempty"`
	// Replayed marks a message.new for an idempotent retry; consumers
	// dedupe on MessageID.
	Replayed     bool            `json:"replayed,omitempty"`
	Timestamp    int64           `json:"ts"`
}

func New(eventType string, ref domain.ConversationRef, actorID int64) Event {
	return Event{
		Type:         eventType,
		Conversation: ref.Key(),
		ActorID:      actorID,
		Timestamp:    time.Now().UnixMilli(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
