package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsecore/internal/database"
	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

var (
	_ repository.MessageRepository      = (*MessageRepo)(nil)
	_ repository.ConversationRepository = (*ConversationRepo)(nil)
	_ repository.ReadCursorRepository   = (*ReadCursorRepo)(nil)
	_ repository.MembershipProvider     = (*MembershipRepo)(nil)
	_ repository.IdentityProvider       = (*IdentityRepo)(nil)
)

// testPool connects to TEST_POSTGRES_DSN and applies the schema. Each test
// works on fresh ids, so runs do not interfere.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("set TEST_POSTGRES_DSN to run postgres integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.ConnectURL(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}

// freshIDs returns a base id unlikely to collide with earlier runs.
func freshIDs() int64 {
	return time.Now().UnixMicro() * 10
}

func appendMessage(t *testing.T, repo *MessageRepo, ref domain.ConversationRef, author int64, content string, parent *int64) *domain.Message {
	t.Helper()
	msg, created, err := repo.Append(context.Background(), &domain.Message{
		Conversation: ref,
		AuthorID:     author,
		ParentID:     parent,
		Content:      content,
		ContentType:  domain.ContentText,
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
	require.True(t, created)
	return msg
}

func TestMessageRepoTimelineHeadsAndUnread(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	messages := NewMessageRepo(pool)
	convs := NewConversationRepo(pool)
	base := freshIDs()
	a, b := base, base+1
	ref := domain.DirectRef(b, a)

	first := appendMessage(t, messages, ref, a, "one", nil)
	second := appendMessage(t, messages, ref, b, "two", nil)
	reply := appendMessage(t, messages, ref, a, "threaded", &first.ID)

	page, err := messages.ListTimeline(ctx, ref, domain.TimelineQuery{Limit: 10, Direction: domain.Backward})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, first.ID, page[0].ID)
	assert.Equal(t, second.ID, page[1].ID)

	page, err = messages.ListTimeline(ctx, ref, domain.TimelineQuery{Boundary: first.ID, Limit: 10, Direction: domain.Forward})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "two", page[0].Content)

	replies, err := messages.ListReplies(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	n, err := messages.CountAfter(ctx, ref, 0, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	head, err := convs.GetHead(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, second.ID, head.LastMessageID)
	assert.Equal(t, "two", head.LastContent)

	require.NoError(t, messages.SoftDelete(ctx, second.ID))
	head, err = convs.GetHead(ctx, ref)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, first.ID, head.LastMessageID)

	heads, err := convs.ListDirectHeads(ctx, a)
	require.NoError(t, err)
	require.Len(t, heads, 1)
	assert.Equal(t, ref, heads[0].Ref)

	require.NoError(t, messages.SoftDelete(ctx, first.ID))
	head, err = convs.GetHead(ctx, ref)
	require.NoError(t, err)
	assert.Nil(t, head)
}

func TestMessageRepoIdempotencyAndConcurrency(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	messages := NewMessageRepo(pool)
	ref := domain.DirectRef(freshIDs(), freshIDs()+5)

	key := "b1a7c4e2-0000-4000-8000-000000000001"
	in := &domain.Message{Conversation: ref, AuthorID: ref.UserA, Content: "once", ContentType: domain.ContentText, IdempotencyKey: &key, CreatedAt: time.Now().UTC()}
	first, created, err := messages.Append(ctx, in)
	require.NoError(t, err)
	require.True(t, created)
	again, created, err := messages.Append(ctx, in)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := messages.Append(ctx, &domain.Message{Conversation: ref, AuthorID: ref.UserB, Content: "race", ContentType: domain.ContentText, CreatedAt: time.Now().UTC()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	head, err := NewConversationRepo(pool).GetHead(ctx, ref)
	require.NoError(t, err)
	page, err := messages.ListTimeline(ctx, ref, domain.TimelineQuery{Limit: 100, Direction: domain.Backward})
	require.NoError(t, err)
	require.Len(t, page, 21)
	assert.Equal(t, page[len(page)-1].ID, head.LastMessageID, "head tracks the highest id")
}

func TestMessageRepoEditsAndReactions(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	messages := NewMessageRepo(pool)
	ref := domain.DirectRef(freshIDs(), freshIDs()+7)
	msg := appendMessage(t, messages, ref, ref.UserA, "draft", nil)

	updated, err := messages.UpdateContent(ctx, msg.ID, ref.UserA, "final", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, updated.IsEdited)
	edits, err := messages.ListEdits(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "draft", edits[0].Content)

	require.NoError(t, messages.AddReaction(ctx, msg.ID, ref.UserB, "👍"))
	require.NoError(t, messages.AddReaction(ctx, msg.ID, ref.UserB, "👍"))
	require.NoError(t, messages.AddReaction(ctx, msg.ID, ref.UserA, "👍"))
	got, err := messages.GetByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{ref.UserA, ref.UserB}, got.Reactions["👍"])

	assert.ErrorIs(t, messages.AddReaction(ctx, -1, ref.UserB, "👍"), repository.ErrNotFound)
	assert.ErrorIs(t, messages.SetPinned(ctx, -1, true), repository.ErrNotFound)

	missing, err := messages.GetByID(ctx, -1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, messages.SoftDelete(ctx, msg.ID))
	_, err = messages.UpdateContent(ctx, msg.ID, ref.UserA, "too late", time.Now().UTC())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	edits, err = messages.ListEdits(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, edits, 1)
}

func TestReadCursorRepoIsMonotonic(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	cursors := NewReadCursorRepo(pool)
	user := freshIDs()
	key := domain.ChannelRef(user).Key()

	cur, err := cursors.Get(ctx, user, key)
	require.NoError(t, err)
	assert.Nil(t, cur)

	moved, err := cursors.Advance(ctx, user, key, 10, time.Now())
	require.NoError(t, err)
	assert.True(t, moved)
	moved, err = cursors.Advance(ctx, user, key, 7, time.Now())
	require.NoError(t, err)
	assert.False(t, moved)
	moved, err = cursors.Advance(ctx, user, key, 10, time.Now())
	require.NoError(t, err)
	assert.False(t, moved)

	cur, err = cursors.Get(ctx, user, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), cur.LastReadMessageID)
}

func TestMembershipRepoRoles(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	base := freshIDs()
	workspace, public, private := base, base, base+1
	owner, member, outsider := base+2, base+3, base+4

	_, err := pool.Exec(ctx, `INSERT INTO channels (id, workspace_id, name, type) VALUES ($1, $2, 'general', 'public'), ($3, $2, 'secret', 'private')`, public, workspace, private)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO workspace_members (workspace_id, user_id, role) VALUES ($1, $2, 'owner'), ($1, $3, 'member')`, workspace, owner, member)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO channel_members (channel_id, user_id, role) VALUES ($1, $2, 'moderator')`, private, member)
	require.NoError(t, err)

	members := NewMembershipRepo(pool)
	cases := []struct {
		user int64
		ref  domain.ConversationRef
		want domain.Role
	}{
		{owner, domain.ChannelRef(public), domain.RoleAdmin},
		{member, domain.ChannelRef(public), domain.RoleMember},
		{outsider, domain.ChannelRef(public), domain.RoleNone},
		{owner, domain.ChannelRef(private), domain.RoleNone},
		{member, domain.ChannelRef(private), domain.RoleModerator},
		{member, domain.DirectRef(member, outsider), domain.RoleMember},
		{owner, domain.DirectRef(member, outsider), domain.RoleNone},
	}
	for _, tc := range cases {
		got, err := members.Role(ctx, tc.user, tc.ref)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "user %d in %s", tc.user, tc.ref)
	}

	channels, err := members.ChannelsForUser(ctx, member)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "general", channels[0].Name)

	channels, err = members.ChannelsForUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, channels, 1)
}
