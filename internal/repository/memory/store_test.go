package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

var (
	_ repository.MessageRepository      = (*Store)(nil)
	_ repository.ConversationRepository = (*Store)(nil)
	_ repository.ReadCursorRepository   = (*Store)(nil)
	_ repository.MembershipProvider     = (*Directory)(nil)
	_ repository.IdentityProvider       = (*Directory)(nil)
)

func appendMsg(t *testing.T, s *Store, ref domain.ConversationRef, author int64, content string, parent *int64) *domain.Message {
	t.Helper()
	m, created, err := s.Append(context.Background(), &domain.Message{
		Conversation: ref,
		AuthorID:     author,
		ParentID:     parent,
		Content:      content,
		ContentType:  domain.ContentText,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return m
}

func TestAppendAssignsIncreasingIDsConcurrently(t *testing.T) {
	s := NewStore()
	ref := domain.ChannelRef(1)

	var wg sync.WaitGroup
	ids := make(chan int64, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, _, err := s.Append(context.Background(), &domain.Message{Conversation: ref, AuthorID: 1, Content: "x"})
			assert.NoError(t, err)
			ids <- m.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, 100)

	page, err := s.ListTimeline(context.Background(), ref, domain.TimelineQuery{Limit: 200, Direction: domain.Forward})
	require.NoError(t, err)
	for i := 1; i < len(page); i++ {
		assert.Less(t, page[i-1].ID, page[i].ID)
	}
}

func TestAppendIdempotencyKey(t *testing.T) {
	s := NewStore()
	key := "k-1"
	msg := &domain.Message{Conversation: domain.ChannelRef(1), AuthorID: 1, Content: "hi", IdempotencyKey: &key}

	first, created, err := s.Append(context.Background(), msg)
	require.NoError(t, err)
	require.True(t, created)

	again, created, err := s.Append(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	other := &domain.Message{Conversation: domain.ChannelRef(1), AuthorID: 2, Content: "hi", IdempotencyKey: &key}
	third, created, err := s.Append(context.Background(), other)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestHeadFollowsTopLevelMessages(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ref := domain.DirectRef(1, 2)

	root := appendMsg(t, s, ref, 1, "first", nil)
	appendMsg(t, s, ref, 2, "reply", &root.ID)

	head, err := s.GetHead(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, root.ID, head.LastMessageID)

	second := appendMsg(t, s, ref, 2, "second", nil)
	head, _ = s.GetHead(ctx, ref)
	assert.Equal(t, second.ID, head.LastMessageID)

	require.NoError(t, s.SoftDelete(ctx, second.ID))
	head, _ = s.GetHead(ctx, ref)
	assert.Equal(t, root.ID, head.LastMessageID)

	require.NoError(t, s.SoftDelete(ctx, root.ID))
	head, err = s.GetHead(ctx, ref)
	require.NoError(t, err)
	assert.Nil(t, head)

	heads, err := s.ListDirectHeads(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, heads)
}

func TestTimelineDirections(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	ref := domain.ChannelRef(3)

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, appendMsg(t, s, ref, 1, "m", nil).ID)
	}
	appendMsg(t, s, ref, 1, "reply", &ids[0])
	require.NoError(t, s.SoftDelete(ctx, ids[2]))

	fwd, err := s.ListTimeline(ctx, ref, domain.TimelineQuery{Boundary: ids[0], Limit: 2, Direction: domain.Forward})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[3]}, messageIDs(fwd))

	back, err := s.ListTimeline(ctx, ref, domain.TimelineQuery{Limit: 3, Direction: domain.Backward})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[3], ids[4]}, messageIDs(back))

	back, err = s.ListTimeline(ctx, ref, domain.TimelineQuery{Boundary: ids[3], Limit: 10, Direction: domain.Backward})
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0], ids[1]}, messageIDs(back))
}

func TestAdvanceIsMonotonic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	moved, err := s.Advance(ctx, 1, "c:1", 10, time.Now())
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = s.Advance(ctx, 1, "c:1", 4, time.Now())
	require.NoError(t, err)
	assert.False(t, moved)

	c, err := s.Get(ctx, 1, "c:1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), c.LastReadMessageID)

	missing, err := s.Get(ctx, 2, "c:1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDirectoryRoles(t *testing.T) {
	d := NewDirectory()
	d.AddChannel(domain.ChannelInfo{ID: 5, Name: "general"})
	d.SetRole(5, 1, domain.RoleModerator)
	ctx := context.Background()

	role, err := d.Role(ctx, 1, domain.ChannelRef(5))
	require.NoError(t, err)
	assert.Equal(t, domain.RoleModerator, role)

	ok, _ := d.IsMember(ctx, 2, domain.ChannelRef(5))
	assert.False(t, ok)
	ok, _ = d.IsMember(ctx, 2, domain.DirectRef(1, 2))
	assert.True(t, ok)
	ok, _ = d.IsMember(ctx, 3, domain.DirectRef(1, 2))
	assert.False(t, ok)

	chans, err := d.ChannelsForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, chans, 1)
	assert.Equal(t, "general", chans[0].Name)
}

func messageIDs(ms []domain.Message) []int64 {
	out := make([]int64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}
