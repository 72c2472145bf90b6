package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsecore/internal/domain"
)

func TestUnreadScenarioInChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)

	first := f.send(t, ch, alice, "hi bob")
	assert.Equal(t, int64(1), f.unread(t, bob, ch))
	assert.Equal(t, int64(0), f.unread(t, alice, ch), "own messages are never unread")

	_, err := f.reads.MarkRead(ctx, bob, ch, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.unread(t, bob, ch))

	f.send(t, ch, alice, "still there?")
	assert.Equal(t, int64(1), f.unread(t, bob, ch))
}

func TestUnreadIgnoresRepliesAndDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)

	root := f.send(t, ch, alice, "root")
	f.reply(t, root.ID, alice, "reply")
	gone := f.send(t, ch, alice, "oops")
	require.NoError(t, f.delivery.Delete(ctx, alice, gone.ID))

	assert.Equal(t, int64(1), f.unread(t, bob, ch))
}

func TestMarkReadIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)
	older := f.send(t, ch, alice, "one")
	newer := f.send(t, ch, alice, "two")

	advanced, err := f.reads.MarkRead(ctx, bob, ch, newer.ID)
	require.NoError(t, err)
	assert.True(t, advanced)

	advanced, err = f.reads.MarkRead(ctx, bob, ch, older.ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	cur, err := f.reads.Cursor(ctx, bob, ch)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, newer.ID, *cur)
}

func TestMarkReadConcurrentReceiptsKeepMaximum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)
	var ids []int64
	for i := 0; i < 20; i++ {
		ids = append(ids, f.send(t, ch, alice, "m").ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := f.reads.MarkRead(ctx, bob, ch, id)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	cur, err := f.reads.Cursor(ctx, bob, ch)
	require.NoError(t, err)
	assert.Equal(t, ids[len(ids)-1], *cur)
	assert.Equal(t, int64(0), f.unread(t, bob, ch))
}

func TestMarkReadErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)
	msg := f.send(t, ch, alice, "hello")
	dm := f.send(t, domain.DirectRef(alice, bob), alice, "psst")

	_, err := f.reads.MarkRead(ctx, carol, ch, msg.ID)
	assert.ErrorIs(t, err, ErrNotMember)

	_, err = f.reads.MarkRead(ctx, bob, ch, 777)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.reads.MarkRead(ctx, bob, ch, dm.ID)
	assert.ErrorIs(t, err, ErrNotFound, "message belongs to another conversation")

	cur, err := f.reads.Cursor(ctx, bob, ch)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestMarkAllRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ch := domain.ChannelRef(general)

	upTo, err := f.reads.MarkAllRead(ctx, bob, ch)
	require.NoError(t, err)
	assert.Zero(t, upTo)

	f.send(t, ch, alice, "a")
	last := f.send(t, ch, alice, "b")
	upTo, err = f.delivery.MarkAllRead(ctx, bob, ch)
	require.NoError(t, err)
	assert.Equal(t, last.ID, upTo)
	assert.Equal(t, int64(0), f.unread(t, bob, ch))
}

func TestDeliveryMarkReadResolvesConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dm := domain.DirectRef(alice, bob)
	msg := f.send(t, dm, alice, "ping")

	advanced, err := f.delivery.MarkRead(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.True(t, advanced)

	state, err := f.delivery.Unread(ctx, bob, dm)
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.Count)
	require.NotNil(t, state.LastReadID)
	assert.Equal(t, msg.ID, *state.LastReadID)

	_, err = f.delivery.MarkRead(ctx, carol, msg.ID)
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Contains(t, f.pub.types(), "read.advanced")
}
