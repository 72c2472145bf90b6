package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type ConversationKind string

const (
	KindChannel ConversationKind = "channel"
	KindDirect  ConversationKind = "direct"
)

var ErrInvalidConversation = errors.New("invalid conversation reference")

// ConversationRef identifies either a channel or a direct pair, never both.
// Direct refs are canonical: UserA < UserB.
type ConversationRef struct {
	Kind      ConversationKind `json:"kind"`
	ChannelID int64            `json:"channel_id,omitempty"`
	UserA     int64            `json:"user_a,omitempty"`
	UserB     int64            `json:"user_b,omitempty"`
}

func ChannelRef(channelID int64) ConversationRef {
	return ConversationRef{Kind: KindChannel, ChannelID: channelID}
}

// DirectRef returns the canonical ref for the pair, so (a,b) and (b,a) collapse to one key.
func DirectRef(a, b int64) ConversationRef {
	if a > b {
		a, b = b, a
	}
	return ConversationRef{Kind: KindDirect, UserA: a, UserB: b}
}

func (r ConversationRef) IsChannel() bool { return r.Kind == KindChannel }
func (r ConversationRef) IsDirect() bool  { return r.Kind == KindDirect }

func (r ConversationRef) Validate() error {
	switch r.Kind {
	case KindChannel:
		if r.ChannelID <= 0 || r.UserA != 0 || r.UserB != 0 {
			return ErrInvalidConversation
		}
	case KindDirect:
		if r.ChannelID != 0 || r.UserA <= 0 || r.UserB <= 0 || r.UserA >= r.UserB {
			return ErrInvalidConversation
		}
	default:
		return ErrInvalidConversation
	}
	return nil
}

// Key renders the storage key: "c:<channel>" or "d:<a>:<b>".
func (r ConversationRef) Key() string {
	if r.Kind == KindDirect {
		return fmt.Sprintf("d:%d:%d", r.UserA, r.UserB)
	}
	return fmt.Sprintf("c:%d", r.ChannelID)
}

func (r ConversationRef) String() string { return r.Key() }

// Includes reports whether userID is one of the two participants of a direct ref.
func (r ConversationRef) Includes(userID int64) bool {
	return r.Kind == KindDirect && (r.UserA == userID || r.UserB == userID)
}

// Peer returns the other participant of a direct ref, or 0.
func (r ConversationRef) Peer(userID int64) int64 {
	switch {
	case !r.IsDirect():
		return 0
	case r.UserA == userID:
		return r.UserB
	case r.UserB == userID:
		return r.UserA
	}
	return 0
}

func ParseConversationKey(key string) (ConversationRef, error) {
	parts := strings.Split(key, ":")
	switch {
	case len(parts) == 2 && parts[0] == "c":
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return ConversationRef{}, ErrInvalidConversation
		}
		ref := ChannelRef(id)
		return ref, ref.Validate()
	case len(parts) == 3 && parts[0] == "d":
		a, errA := strconv.ParseInt(parts[1], 10, 64)
		b, errB := strconv.ParseInt(parts[2], 10, 64)
		if errA != nil || errB != nil {
			return ConversationRef{}, ErrInvalidConversation
		}
		ref := ConversationRef{Kind: KindDirect, UserA: a, UserB: b}
		return ref, ref.Validate()
	}
	return ConversationRef{}, ErrInvalidConversation
}

// ConversationHead is the persisted last_message_ref of a conversation.
type ConversationHead struct {
	Ref           ConversationRef
	LastMessageID int64
	LastMessageAt time.Time
	LastAuthorID  int64
	LastContent   string
}

type ConversationSummary struct {
	Key           string           `json:"key"`
	Kind          ConversationKind `json:"kind"`
	ChannelID     int64            `json:"channel_id,omitempty"`
	PeerID        int64            `json:"peer_id,omitempty"`
	Title         string           `json:"title"`
	Avatar        *string          `json:"avatar,omitempty"`
	LastMessageID int64            `json:"last_message_id"`
	Preview       string           `json:"last_message_preview"`
	LastMessageAt time.Time        `json:"last_message_at"`
	UnreadCount   int64            `json:"unread_count"`
}

const PreviewLength = 80

// Preview truncates content to PreviewLength runes.
func Preview(content string) string {
	r := []rune(content)
	if len(r) <= PreviewLength {
		return content
	}
	return string(r[:PreviewLength])
}
