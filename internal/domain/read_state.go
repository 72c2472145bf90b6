package domain

import "time"

// ReadCursor is the highest message id a user acknowledged in a conversation.
// It only moves forward.
type ReadCursor struct {
	UserID            int64     `json:"user_id"`
	ConversationKey   string    `json:"conversation_key"`
	LastReadMessageID int64     `json:"last_read_message_id"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ThreadSummary struct {
	RootID      int64      `json:"root_id"`
	ReplyIDs    []int64    `json:"reply_ids"`
	ReplyCount  int        `json:"reply_count"`
	LastReplyAt *time.Time `json:"last_reply_at,omitempty"`
}
