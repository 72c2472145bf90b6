package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsecore/internal/domain"
)

func TestReplyStaysOutOfTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)

	root := f.send(t, ch, alice, "root")
	reply := f.reply(t, root.ID, bob, "in thread")
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)
	assert.Equal(t, ch, reply.Conversation)

	page, err := f.messages.Timeline(ctx, alice, ch, "", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{root.ID}, messageIDs(page.Messages))

	replies, err := f.delivery.Replies(ctx, alice, root.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{reply.ID}, messageIDs(replies))
}

func TestDeletedReplyBecomesTombstoneInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, domain.ChannelRef(general), alice, "root")
	r1 := f.reply(t, root.ID, bob, "one")
	r2 := f.reply(t, root.ID, alice, "two")
	r3 := f.reply(t, root.ID, bob, "three")

	require.NoError(t, f.delivery.Delete(ctx, alice, r2.ID))

	replies, err := f.delivery.Replies(ctx, bob, root.ID)
	require.NoError(t, err)
	require.Equal(t, []int64{r1.ID, r2.ID, r3.ID}, messageIDs(replies))
	assert.True(t, replies[1].IsDeleted)
	assert.Equal(t, domain.DeletedMarker, replies[1].Content)
	assert.Equal(t, "three", replies[2].Content)

	sum, err := f.delivery.Thread(ctx, bob, root.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.ReplyCount)
	assert.Equal(t, []int64{r1.ID, r2.ID, r3.ID}, sum.ReplyIDs)
	require.NotNil(t, sum.LastReplyAt)
	assert.True(t, sum.LastReplyAt.Equal(r3.CreatedAt))
}

func TestReplyRejectsInvalidParents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, domain.ChannelRef(general), alice, "root")
	reply := f.reply(t, root.ID, bob, "reply")

	_, err := f.delivery.Reply(ctx, ReplyInput{RootID: reply.ID, AuthorID: alice, Content: "nested"})
	assert.ErrorIs(t, err, ErrInvalidParent)

	_, err = f.delivery.Reply(ctx, ReplyInput{RootID: 9999, AuthorID: alice, Content: "orphan"})
	assert.ErrorIs(t, err, ErrInvalidParent)

	require.NoError(t, f.delivery.Delete(ctx, alice, root.ID))
	_, err = f.delivery.Reply(ctx, ReplyInput{RootID: root.ID, AuthorID: bob, Content: "late"})
	assert.ErrorIs(t, err, ErrInvalidParent)

	_, err = f.delivery.Replies(ctx, alice, reply.ID)
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestAppendParentMustShareConversation(t *testing.T) {
	f := newFixture(t)
	root := f.send(t, domain.ChannelRef(general), alice, "root")
	parent := root.ID

	_, _, err := f.messages.Append(context.Background(), AppendInput{
		Conversation: domain.DirectRef(alice, bob),
		AuthorID:     alice,
		Content:      "wrong place",
		ParentID:     &parent,
	})
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestThreadRequiresMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, domain.ChannelRef(general), alice, "root")

	_, err := f.delivery.Replies(ctx, carol, root.ID)
	assert.ErrorIs(t, err, ErrNotMember)
	_, err = f.delivery.Reply(ctx, ReplyInput{RootID: root.ID, AuthorID: carol, Content: "hi"})
	assert.ErrorIs(t, err, ErrNotMember)
	_, err = f.delivery.Thread(ctx, alice, 4242)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOutsiderCannotTellRepliesFromRoots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.send(t, domain.ChannelRef(general), alice, "root")
	reply := f.reply(t, root.ID, bob, "in thread")

	for _, id := range []int64{root.ID, reply.ID} {
		_, err := f.delivery.Replies(ctx, carol, id)
		assert.ErrorIs(t, err, ErrNotMember, "message %d", id)
		_, err = f.delivery.Thread(ctx, carol, id)
		assert.ErrorIs(t, err, ErrNotMember, "message %d", id)
		_, err = f.delivery.Reply(ctx, ReplyInput{RootID: id, AuthorID: carol, Content: "hi"})
		assert.ErrorIs(t, err, ErrNotMember, "message %d", id)
		_, err = f.delivery.MarkRead(ctx, carol, id)
		assert.ErrorIs(t, err, ErrNotMember, "message %d", id)
	}

	// Members still get the precise answer.
	_, err := f.delivery.Replies(ctx, bob, reply.ID)
	assert.ErrorIs(t, err, ErrInvalidParent)
}
