// Package memory keeps the messaging state in process. It backs the service
// tests and the "memory" store driver used for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

// Store implements MessageRepository, ConversationRepository and
// ReadCursorRepository. A single mutex is the serialization point for id
// assignment and head updates.
type Store struct {
	mu sync.RWMutex

	nextID   int64
	messages map[int64]*domain.Message
	byConv   map[string][]int64
	replies  map[int64][]int64
	heads    map[string]*domain.ConversationHead
	idem     map[idemKey]int64
	edits    map[int64][]domain.MessageEdit
	cursors  map[cursorKey]*domain.ReadCursor
}

type idemKey struct {
	conv   string
	author int64
	key    string
}

type cursorKey struct {
	user int64
	conv string
}

func NewStore() *Store {
	return &Store{
		messages: make(map[int64]*domain.Message),
		byConv:   make(map[string][]int64),
		replies:  make(map[int64][]int64),
		heads:    make(map[string]*domain.ConversationHead),
		idem:     make(map[idemKey]int64),
		edits:    make(map[int64][]domain.MessageEdit),
		cursors:  make(map[cursorKey]*domain.ReadCursor),
	}
}

func (s *Store) Append(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := msg.Conversation.Key()
	var ik *idemKey
	if msg.IdempotencyKey != nil {
		ik = &idemKey{conv: key, author: msg.AuthorID, key: *msg.IdempotencyKey}
		if id, ok := s.idem[*ik]; ok {
			return s.messages[id].Clone(), false, nil
		}
	}

	s.nextID++
	stored := msg.Clone()
	stored.ID = s.nextID
	if ik != nil {
		s.idem[*ik] = stored.ID
	}
	if stored.Reactions == nil {
		stored.Reactions = map[string][]int64{}
	}
	s.messages[stored.ID] = stored
	s.byConv[key] = append(s.byConv[key], stored.ID)

	if stored.ParentID != nil {
		s.replies[*stored.ParentID] = append(s.replies[*stored.ParentID], stored.ID)
	} else {
		s.heads[key] = &domain.ConversationHead{
			Ref:           stored.Conversation,
			LastMessageID: stored.ID,
			LastMessageAt: stored.CreatedAt,
			LastAuthorID:  stored.AuthorID,
			LastContent:   stored.Content,
		}
	}
	return stored.Clone(), true, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return m.Clone(), nil
}

func (s *Store) UpdateContent(ctx context.Context, id, editorID int64, content string, editedAt time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok || m.IsDeleted {
		return nil, repository.ErrNotFound
	}
	s.edits[id] = append(s.edits[id], domain.MessageEdit{
		MessageID:  id,
		EditorID:   editorID,
		Content:    m.Content,
		ReplacedAt: editedAt,
	})
	m.Content = content
	m.IsEdited = true
	at := editedAt
	m.EditedAt = &at

	key := m.Conversation.Key()
	if h := s.heads[key]; h != nil && h.LastMessageID == id {
		h.LastContent = content
	}
	return m.Clone(), nil
}

func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	if m.IsDeleted {
		return nil
	}
	m.IsDeleted = true
	if m.ParentID == nil {
		s.recomputeHead(m.Conversation)
	}
	return nil
}

// recomputeHead must be called with mu held.
func (s *Store) recomputeHead(ref domain.ConversationRef) {
	key := ref.Key()
	ids := s.byConv[key]
	for i := len(ids) - 1; i >= 0; i-- {
		m := s.messages[ids[i]]
		if m.ParentID != nil || m.IsDeleted {
			continue
		}
		s.heads[key] = &domain.ConversationHead{
			Ref:           ref,
			LastMessageID: m.ID,
			LastMessageAt: m.CreatedAt,
			LastAuthorID:  m.AuthorID,
			LastContent:   m.Content,
		}
		return
	}
	delete(s.heads, key)
}

func (s *Store) SetPinned(ctx context.Context, id int64, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.IsPinned = pinned
	return nil
}

func (s *Store) AddReaction(ctx context.Context, id, userID int64, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.AddReaction(emoji, userID)
	return nil
}

func (s *Store) RemoveReaction(ctx context.Context, id, userID int64, emoji string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	m.RemoveReaction(emoji, userID)
	return nil
}

func (s *Store) ListTimeline(ctx context.Context, ref domain.ConversationRef, q domain.TimelineQuery) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConv[ref.Key()]
	out := []domain.Message{}
	visible := func(id int64) bool {
		m := s.messages[id]
		return m.ParentID == nil && !m.IsDeleted
	}

	if q.Direction == domain.Backward {
		end := len(ids)
		if q.Boundary > 0 {
			end = sort.Search(len(ids), func(i int) bool { return ids[i] >= q.Boundary })
		}
		for i := end - 1; i >= 0 && len(out) < q.Limit; i-- {
			if visible(ids[i]) {
				out = append(out, *s.messages[ids[i]].Clone())
			}
		}
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
		return out, nil
	}

	start := sort.Search(len(ids), func(i int) bool { return ids[i] > q.Boundary })
	for i := start; i < len(ids) && len(out) < q.Limit; i++ {
		if visible(ids[i]) {
			out = append(out, *s.messages[ids[i]].Clone())
		}
	}
	return out, nil
}

func (s *Store) ListReplies(ctx context.Context, rootID int64) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.replies[rootID]
	out := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.messages[id].Clone())
	}
	return out, nil
}

func (s *Store) ListPinned(ctx context.Context, ref domain.ConversationRef) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Message{}
	for _, id := range s.byConv[ref.Key()] {
		m := s.messages[id]
		if m.IsPinned && !m.IsDeleted && m.ParentID == nil {
			out = append(out, *m.Clone())
		}
	}
	return out, nil
}

func (s *Store) ListEdits(ctx context.Context, id int64) ([]domain.MessageEdit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.MessageEdit{}, s.edits[id]...), nil
}

func (s *Store) CountAfter(ctx context.Context, ref domain.ConversationRef, afterID, excludeAuthor int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byConv[ref.Key()]
	var n int64
	for i := sort.Search(len(ids), func(i int) bool { return ids[i] > afterID }); i < len(ids); i++ {
		m := s.messages[ids[i]]
		if m.ParentID == nil && !m.IsDeleted && m.AuthorID != excludeAuthor {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetHead(ctx context.Context, ref domain.ConversationRef) (*domain.ConversationHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.heads[ref.Key()]
	if !ok {
		return nil, nil
	}
	cp := *h
	return &cp, nil
}

func (s *Store) GetHeads(ctx context.Context, refs []domain.ConversationRef) (map[string]domain.ConversationHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.ConversationHead, len(refs))
	for _, ref := range refs {
		if h, ok := s.heads[ref.Key()]; ok {
			out[ref.Key()] = *h
		}
	}
	return out, nil
}

func (s *Store) ListDirectHeads(ctx context.Context, userID int64) ([]domain.ConversationHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ConversationHead{}
	for _, h := range s.heads {
		if h.Ref.Includes(userID) {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, userID int64, conversationKey string) (*domain.ReadCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cursors[cursorKey{user: userID, conv: conversationKey}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) Advance(ctx context.Context, userID int64, conversationKey string, messageID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := cursorKey{user: userID, conv: conversationKey}
	c, ok := s.cursors[k]
	if ok && c.LastReadMessageID >= messageID {
		return false, nil
	}
	s.cursors[k] = &domain.ReadCursor{
		UserID:            userID,
		ConversationKey:   conversationKey,
		LastReadMessageID: messageID,
		UpdatedAt:         at,
	}
	return true, nil
}
