package domain

import (
	"sort"
	"time"
)

type ContentType string

const (
	ContentText   ContentType = "text"
	ContentVoice  ContentType = "voice"
	ContentImage  ContentType = "image"
	ContentFile   ContentType = "file"
	ContentSystem ContentType = "system"
)

func (t ContentType) Valid() bool {
	switch t {
	case ContentText, ContentVoice, ContentImage, ContentFile, ContentSystem:
		return true
	}
	return false
}

// DeletedMarker replaces the content of soft-deleted replies in thread listings.
const DeletedMarker = "[message deleted]"

type Message struct {
	ID             int64              `json:"id"`
	Conversation   ConversationRef    `json:"conversation"`
	AuthorID       int64              `json:"author_id"`
	ParentID       *int64             `json:"parent_id,omitempty"`
	Content        string             `json:"content"`
	ContentType    ContentType        `json:"content_type"`
	Attachments    []string           `json:"attachments"`
	Reactions      map[string][]int64 `json:"reactions"`
	IsPinned       bool               `json:"is_pinned"`
	IsEdited       bool               `json:"is_edited"`
	IsDeleted      bool               `json:"is_deleted"`
	IdempotencyKey *string            `json:"-"`
	EditedAt       *time.Time         `json:"edited_at,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

func (m *Message) IsReply() bool { return m.ParentID != nil }

// Tombstone returns a placeholder copy of a deleted message.
func (m *Message) Tombstone() Message {
	t := *m
	t.Content = DeletedMarker
	t.Attachments = []string{}
	t.Reactions = map[string][]int64{}
	t.IsPinned = false
	return t
}

// AddReaction records userID under emoji; it reports false when already present.
func (m *Message) AddReaction(emoji string, userID int64) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]int64)
	}
	users := m.Reactions[emoji]
	i := sort.Search(len(users), func(i int) bool { return users[i] >= userID })
	if i < len(users) && users[i] == userID {
		return false
	}
	users = append(users, 0)
	copy(users[i+1:], users[i:])
	users[i] = userID
	m.Reactions[emoji] = users
	return true
}

func (m *Message) RemoveReaction(emoji string, userID int64) bool {
	users := m.Reactions[emoji]
	i := sort.Search(len(users), func(i int) bool { return users[i] >= userID })
	if i >= len(users) || users[i] != userID {
		return false
	}
	users = append(users[:i], users[i+1:]...)
	if len(users) == 0 {
		delete(m.Reactions, emoji)
	} else {
		m.Reactions[emoji] = users
	}
	return true
}

// Clone deep-copies the mutable collections.
func (m *Message) Clone() *Message {
	c := *m
	c.Attachments = append([]string{}, m.Attachments...)
	c.Reactions = make(map[string][]int64, len(m.Reactions))
	for k, v := range m.Reactions {
		c.Reactions[k] = append([]int64(nil), v...)
	}
	if m.ParentID != nil {
		p := *m.ParentID
		c.ParentID = &p
	}
	if m.EditedAt != nil {
		e := *m.EditedAt
		c.EditedAt = &e
	}
	return &c
}

// MessageEdit is one append-only edit history entry holding the replaced content.
type MessageEdit struct {
	MessageID  int64     `json:"message_id"`
	EditorID   int64     `json:"editor_id"`
	Content    string    `json:"content"`
	ReplacedAt time.Time `json:"replaced_at"`
}

type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// TimelineQuery selects top-level, non-deleted messages around a boundary id.
// A zero Boundary means "from the start" for Forward and "from the newest" for Backward.
type TimelineQuery struct {
	Boundary  int64
	Limit     int
	Direction Direction
}
