package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/metrics"
	"github.com/vedran77/pulsecore/internal/repository"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// MessageStore is the only writer of message rows.
type MessageStore struct {
	messages repository.MessageRepository
	access   *Access
	st       *Storage
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewMessageStore(messages repository.MessageRepository, access *Access, st *Storage, m *metrics.Metrics) *MessageStore {
	return &MessageStore{
		messages: messages,
		access:   access,
		st:       st,
		metrics:  m,
		now:      time.Now,
	}
}

type AppendInput struct {
	Conversation   domain.ConversationRef
	AuthorID       int64
	Content        string
	ContentType    domain.ContentType
	ParentID       *int64
	Attachments    []string
	IdempotencyKey *uuid.UUID
}

type TimelinePage struct {
	Messages   []domain.Message `json:"messages"`
	NextCursor string           `json:"next_cursor,omitempty"`
	HasMore    bool             `json:"has_more"`
}

type appendResult struct {
	msg     *domain.Message
	created bool
}

// Append stores a message and, for top-level messages, moves the
// conversation head in the same write. created is false when the
// idempotency key matched an earlier append; the earlier message is returned.
func (s *MessageStore) Append(ctx context.Context, in AppendInput) (*domain.Message, bool, error) {
	if in.ContentType == "" {
		in.ContentType = domain.ContentText
	}
	if !in.ContentType.Valid() {
		return nil, false, fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, in.ContentType)
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return nil, false, fmt.Errorf("%w: message is empty", ErrInvalidInput)
	}
	if _, err := s.access.Role(ctx, in.AuthorID, in.Conversation); err != nil {
		return nil, false, err
	}
	if in.ParentID != nil {
		if err := s.checkParent(ctx, in.Conversation, *in.ParentID); err != nil {
			return nil, false, err
		}
	}

	msg := &domain.Message{
		Conversation: in.Conversation,
		AuthorID:     in.AuthorID,
		ParentID:     in.ParentID,
		Content:      in.Content,
		ContentType:  in.ContentType,
		Attachments:  append([]string{}, in.Attachments...),
		Reactions:    map[string][]int64{},
		CreatedAt:    s.now().UTC(),
	}
	if in.IdempotencyKey != nil {
		k := in.IdempotencyKey.String()
		msg.IdempotencyKey = &k
	}

	// Without a key a retried insert could store the message twice.
	res, err := call(ctx, s.st, "messages.append", msg.IdempotencyKey != nil, func(c context.Context) (appendResult, error) {
		stored, created, err := s.messages.Append(c, msg)
		return appendResult{msg: stored, created: created}, err
	})
	if err != nil {
		return nil, false, err
	}
	// A key whose message was deleted since does not resurrect it.
	if !res.created && res.msg.IsDeleted {
		return nil, false, ErrNotFound
	}

	if res.created {
		s.metrics.MessageAppended(string(in.Conversation.Kind), in.ParentID != nil)
	} else {
		s.metrics.IdempotentReplay()
	}
	return res.msg, res.created, nil
}

func (s *MessageStore) checkParent(ctx context.Context, ref domain.ConversationRef, parentID int64) error {
	parent, err := s.lookup(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil || parent.IsReply() || parent.IsDeleted || parent.Conversation != ref {
		return ErrInvalidParent
	}
	return nil
}

// lookup returns the raw row, deleted or not, without an access check.
func (s *MessageStore) lookup(ctx context.Context, id int64) (*domain.Message, error) {
	return call(ctx, s.st, "messages.get", true, func(c context.Context) (*domain.Message, error) {
		return s.messages.GetByID(c, id)
	})
}

// live loads a non-deleted message and checks that userID can see it.
// Access is checked before the deleted flag so outsiders learn nothing
// about the message's state.
func (s *MessageStore) live(ctx context.Context, userID, messageID int64) (*domain.Message, domain.Role, error) {
	msg, err := s.lookup(ctx, messageID)
	if err != nil {
		return nil, domain.RoleNone, err
	}
	if msg == nil {
		return nil, domain.RoleNone, ErrNotFound
	}
	role, err := s.access.Role(ctx, userID, msg.Conversation)
	if err != nil {
		return nil, domain.RoleNone, err
	}
	if msg.IsDeleted {
		return nil, domain.RoleNone, ErrNotFound
	}
	return msg, role, nil
}

func (s *MessageStore) Get(ctx context.Context, userID, messageID int64) (*domain.Message, error) {
	msg, _, err := s.live(ctx, userID, messageID)
	return msg, err
}

func (s *MessageStore) Edit(ctx context.Context, messageID, editorID int64, content string) (*domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	msg, _, err := s.live(ctx, editorID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != editorID {
		return nil, ErrForbidden
	}

	// Each attempt writes a history row, so edits are not retried.
	return call(ctx, s.st, "messages.update", false, func(c context.Context) (*domain.Message, error) {
		return s.messages.UpdateContent(c, messageID, editorID, content, s.now().UTC())
	})
}

// SoftDelete hides a message from timelines. The author or a moderator of the
// conversation may delete. The returned message carries IsDeleted.
func (s *MessageStore) SoftDelete(ctx context.Context, messageID, actorID int64) (*domain.Message, error) {
	msg, role, err := s.live(ctx, actorID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actorID && !role.CanModerate() {
		return nil, ErrForbidden
	}
	if err := exec(ctx, s.st, "messages.soft_delete", true, func(c context.Context) error {
		return s.messages.SoftDelete(c, messageID)
	}); err != nil {
		return nil, err
	}
	msg.IsDeleted = true
	return msg, nil
}

func (s *MessageStore) Timeline(ctx context.Context, userID int64, ref domain.ConversationRef, cursor string, limit int, dir domain.Direction) (*TimelinePage, error) {
	if _, err := s.access.Role(ctx, userID, ref); err != nil {
		return nil, err
	}
	boundary, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	switch dir {
	case "":
		dir = domain.Backward
	case domain.Forward, domain.Backward:
	default:
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, dir)
	}

	// Fetch limit+1 to learn whether another page exists.
	q := domain.TimelineQuery{Boundary: boundary, Limit: limit + 1, Direction: dir}
	messages, err := call(ctx, s.st, "messages.timeline", true, func(c context.Context) ([]domain.Message, error) {
		return s.messages.ListTimeline(c, ref, q)
	})
	if err != nil {
		return nil, err
	}

	page := &TimelinePage{HasMore: len(messages) > limit}
	if dir == domain.Forward {
		if page.HasMore {
			messages = messages[:limit]
		}
		// A forward cursor stays usable for polling even when the page is empty.
		next := boundary
		if len(messages) > 0 {
			next = messages[len(messages)-1].ID
		}
		page.NextCursor = EncodeCursor(next)
	} else {
		if page.HasMore {
			messages = messages[len(messages)-limit:]
			page.NextCursor = EncodeCursor(messages[0].ID)
		}
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	page.Messages = messages
	return page, nil
}

// AddReaction is idempotent: reacting twice with the same emoji succeeds.
func (s *MessageStore) AddReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if _, _, err := s.live(ctx, userID, messageID); err != nil {
		return err
	}
	return exec(ctx, s.st, "reactions.add", true, func(c context.Context) error {
		return s.messages.AddReaction(c, messageID, userID, emoji)
	})
}

func (s *MessageStore) RemoveReaction(ctx context.Context, messageID, userID int64, emoji string) error {
	if _, _, err := s.live(ctx, userID, messageID); err != nil {
		return err
	}
	return exec(ctx, s.st, "reactions.remove", true, func(c context.Context) error {
		return s.messages.RemoveReaction(c, messageID, userID, emoji)
	})
}

func (s *MessageStore) SetPinned(ctx context.Context, messageID, actorID int64, pinned bool) (*domain.Message, error) {
	msg, role, err := s.live(ctx, actorID, messageID)
	if err != nil {
		return nil, err
	}
	if msg.AuthorID != actorID && !role.CanModerate() {
		return nil, ErrForbidden
	}
	if err := exec(ctx, s.st, "messages.set_pinned", true, func(c context.Context) error {
		return s.messages.SetPinned(c, messageID, pinned)
	}); err != nil {
		return nil, err
	}
	msg.IsPinned = pinned
	return msg, nil
}

func (s *MessageStore) Pinned(ctx context.Context, userID int64, ref domain.ConversationRef) ([]domain.Message, error) {
	if _, err := s.access.Role(ctx, userID, ref); err != nil {
		return nil, err
	}
	return call(ctx, s.st, "messages.pinned", true, func(c context.Context) ([]domain.Message, error) {
		return s.messages.ListPinned(c, ref)
	})
}

// History lists replaced contents of a message, oldest first.
func (s *MessageStore) History(ctx context.Context, userID, messageID int64) ([]domain.MessageEdit, error) {
	if _, _, err := s.live(ctx, userID, messageID); err != nil {
		return nil, err
	}
	return call(ctx, s.st, "messages.history", true, func(c context.Context) ([]domain.MessageEdit, error) {
		return s.messages.ListEdits(c, messageID)
	})
}
