package service

import (
	"context"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/events"
	"github.com/vedran77/pulsecore/internal/logger"
)

// Delivery is the entry point for the HTTP layer and any future realtime
// transport. Each call gets its own access scope, and change events are
// published only after the storage write returned.
type Delivery struct {
	store     *MessageStore
	index     *ConversationIndex
	threads   *ThreadEngine
	reads     *ReadStateTracker
	publisher events.Publisher
	log       *logger.Logger
}

func NewDelivery(
	store *MessageStore,
	index *ConversationIndex,
	threads *ThreadEngine,
	reads *ReadStateTracker,
	publisher events.Publisher,
	log *logger.Logger,
) *Delivery {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Delivery{
		store:     store,
		index:     index,
		threads:   threads,
		reads:     reads,
		publisher: publisher,
		log:       log.With("component", "delivery"),
	}
}

// publish never fails the request; the write it describes already committed.
func (d *Delivery) publish(ctx context.Context, evt events.Event) {
	if err := d.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		d.log.Warn("publishing event failed", "type", evt.Type, "conversation", evt.Conversation, "error", err)
	}
}

func messageEvent(eventType string, msg *domain.Message, actorID int64) events.Event {
	evt := events.New(eventType, msg.Conversation, actorID)
	evt.MessageID = msg.ID
	evt.ParentID = msg.ParentID
	return evt
}

func (d *Delivery) Conversations(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	return d.index.ListForUser(WithAccessScope(ctx), userID)
}

func (d *Delivery) Timeline(ctx context.Context, userID int64, ref domain.ConversationRef, cursor string, limit int, dir domain.Direction) (*TimelinePage, error) {
	return d.store.Timeline(WithAccessScope(ctx), userID, ref, cursor, limit, dir)
}

// Send appends a message. An idempotent replay publishes message.new again:
// the first attempt may have committed without its event going out.
func (d *Delivery) Send(ctx context.Context, in AppendInput) (*domain.Message, error) {
	msg, created, err := d.store.Append(WithAccessScope(ctx), in)
	if err != nil {
		return nil, err
	}
	d.publishNew(ctx, msg, created)
	return msg, nil
}

func (d *Delivery) publishNew(ctx context.Context, msg *domain.Message, created bool) {
	evt := messageEvent(events.TypeMessageNew, msg, msg.AuthorID)
	evt.Message = msg
	evt.Replayed = !created
	d.publish(ctx, evt)
}

func (d *Delivery) Message(ctx context.Context, userID, messageID int64) (*domain.Message, error) {
	return d.store.Get(WithAccessScope(ctx), userID, messageID)
}

func (d *Delivery) Edit(ctx context.Context, userID, messageID int64, content string) (*domain.Message, error) {
	msg, err := d.store.Edit(WithAccessScope(ctx), messageID, userID, content)
	if err != nil {
		return nil, err
	}
	evt := messageEvent(events.TypeMessageEdited, msg, userID)
	evt.Message = msg
	d.publish(ctx, evt)
	return msg, nil
}

func (d *Delivery) Delete(ctx context.Context, userID, messageID int64) error {
	msg, err := d.store.SoftDelete(WithAccessScope(ctx), messageID, userID)
	if err != nil {
		return err
	}
	d.publish(ctx, messageEvent(events.TypeMessageDeleted, msg, userID))
	return nil
}

func (d *Delivery) History(ctx context.Context, userID, messageID int64) ([]domain.MessageEdit, error) {
	return d.store.History(WithAccessScope(ctx), userID, messageID)
}

func (d *Delivery) React(ctx context.Context, userID, messageID int64, emoji string) error {
	return d.reaction(ctx, userID, messageID, emoji, true)
}

func (d *Delivery) Unreact(ctx context.Context, userID, messageID int64, emoji string) error {
	return d.reaction(ctx, userID, messageID, emoji, false)
}

func (d *Delivery) reaction(ctx context.Context, userID, messageID int64, emoji string, add bool) error {
	ctx = WithAccessScope(ctx)
	msg, err := d.store.Get(ctx, userID, messageID)
	if err != nil {
		return err
	}
	eventType := events.TypeReactionAdded
	if add {
		err = d.store.AddReaction(ctx, messageID, userID, emoji)
	} else {
		eventType = events.TypeReactionRemoved
		err = d.store.RemoveReaction(ctx, messageID, userID, emoji)
	}
	if err != nil {
		return err
	}
	evt := messageEvent(eventType, msg, userID)
	evt.Emoji = emoji
	d.publish(ctx, evt)
	return nil
}

func (d *Delivery) SetPinned(ctx context.Context, userID, messageID int64, pinned bool) (*domain.Message, error) {
	msg, err := d.store.SetPinned(WithAccessScope(ctx), messageID, userID, pinned)
	if err != nil {
		return nil, err
	}
	eventType := events.TypeMessageUnpinned
	if pinned {
		eventType = events.TypeMessagePinned
	}
	d.publish(ctx, messageEvent(eventType, msg, userID))
	return msg, nil
}

func (d *Delivery) Pinned(ctx context.Context, userID int64, ref domain.ConversationRef) ([]domain.Message, error) {
	return d.store.Pinned(WithAccessScope(ctx), userID, ref)
}

func (d *Delivery) Replies(ctx context.Context, userID, rootID int64) ([]domain.Message, error) {
	return d.threads.ListReplies(WithAccessScope(ctx), userID, rootID)
}

func (d *Delivery) Reply(ctx context.Context, in ReplyInput) (*domain.Message, error) {
	msg, created, err := d.threads.Reply(WithAccessScope(ctx), in)
	if err != nil {
		return nil, err
	}
	d.publishNew(ctx, msg, created)
	return msg, nil
}

func (d *Delivery) Thread(ctx context.Context, userID, rootID int64) (*domain.ThreadSummary, error) {
	return d.threads.Summarize(WithAccessScope(ctx), userID, rootID)
}

// MarkRead advances the caller's cursor in the conversation the message
// belongs to.
func (d *Delivery) MarkRead(ctx context.Context, userID, messageID int64) (bool, error) {
	ctx = WithAccessScope(ctx)
	msg, err := d.store.lookup(ctx, messageID)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, ErrNotFound
	}
	advanced, err := d.reads.MarkRead(ctx, userID, msg.Conversation, messageID)
	if err != nil {
		return false, err
	}
	if advanced {
		evt := events.New(events.TypeReadAdvanced, msg.Conversation, userID)
		evt.MessageID = messageID
		d.publish(ctx, evt)
	}
	return advanced, nil
}

func (d *Delivery) MarkAllRead(ctx context.Context, userID int64, ref domain.ConversationRef) (int64, error) {
	upTo, err := d.reads.MarkAllRead(WithAccessScope(ctx), userID, ref)
	if err != nil {
		return 0, err
	}
	if upTo > 0 {
		evt := events.New(events.TypeReadAdvanced, ref, userID)
		evt.MessageID = upTo
		d.publish(ctx, evt)
	}
	return upTo, nil
}

type UnreadState struct {
	Count      int64  `json:"unread_count"`
	LastReadID *int64 `json:"last_read_message_id"`
}

func (d *Delivery) Unread(ctx context.Context, userID int64, ref domain.ConversationRef) (*UnreadState, error) {
	ctx = WithAccessScope(ctx)
	n, err := d.reads.UnreadCount(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	cur, err := d.reads.Cursor(ctx, userID, ref)
	if err != nil {
		return nil, err
	}
	return &UnreadState{Count: n, LastReadID: cur}, nil
}
