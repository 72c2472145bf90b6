package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/events"
	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/metrics"
	"github.com/vedran77/pulsecore/internal/repository"
	"github.com/vedran77/pulsecore/internal/repository/memory"
)

const (
	alice int64 = 1
	bob   int64 = 2
	carol int64 = 3
	mod   int64 = 4

	general int64 = 5
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

// countingMembers counts provider round trips.
type countingMembers struct {
	repository.MembershipProvider
	mu    sync.Mutex
	calls int
}

func (c *countingMembers) Role(ctx context.Context, userID int64, ref domain.ConversationRef) (domain.Role, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.MembershipProvider.Role(ctx, userID, ref)
}

type fixture struct {
	store    *memory.Store
	dir      *memory.Directory
	members  *countingMembers
	pub      *recordingPublisher
	messages *MessageStore
	index    *ConversationIndex
	threads  *ThreadEngine
	reads    *ReadStateTracker
	delivery *Delivery
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets a test wrap the message repository.
func newFixtureWith(t *testing.T, wrap func(repository.MessageRepository) repository.MessageRepository) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.NewStore(),
		dir:   memory.NewDirectory(),
		pub:   &recordingPublisher{},
	}
	f.dir.AddChannel(domain.ChannelInfo{ID: general, Name: "general"})
	f.dir.SetRole(general, alice, domain.RoleMember)
	f.dir.SetRole(general, bob, domain.RoleMember)
	f.dir.SetRole(general, mod, domain.RoleModerator)
	f.dir.AddProfile(domain.Profile{UserID: alice, Username: "alice", DisplayName: "Alice"})
	f.dir.AddProfile(domain.Profile{UserID: bob, Username: "bob", DisplayName: "Bob"})
	f.dir.AddProfile(domain.Profile{UserID: carol, Username: "carol"})
	f.members = &countingMembers{MembershipProvider: f.dir}

	var messages repository.MessageRepository = f.store
	if wrap != nil {
		messages = wrap(f.store)
	}

	log := logger.Nop()
	f.metrics = metrics.New(prometheus.NewRegistry())
	m := f.metrics
	st := NewStorage(200*time.Millisecond, time.Millisecond, m, log)
	access := NewAccess(f.members, st)
	f.messages = NewMessageStore(messages, access, st, m)
	f.index = NewConversationIndex(f.store, messages, f.store, f.members, f.dir, st)
	f.threads = NewThreadEngine(f.messages, messages, access, st)
	f.reads = NewReadStateTracker(f.store, f.store, f.messages, f.index, access, st, m)
	f.delivery = NewDelivery(f.messages, f.index, f.threads, f.reads, f.pub, log)
	return f
}

func (f *fixture) send(t *testing.T, ref domain.ConversationRef, author int64, content string) *domain.Message {
	t.Helper()
	msg, err := f.delivery.Send(context.Background(), AppendInput{
		Conversation: ref,
		AuthorID:     author,
		Content:      content,
	})
	require.NoError(t, err)
	return msg
}

func (f *fixture) reply(t *testing.T, rootID, author int64, content string) *domain.Message {
	t.Helper()
	msg, err := f.delivery.Reply(context.Background(), ReplyInput{RootID: rootID, AuthorID: author, Content: content})
	require.NoError(t, err)
	return msg
}

func (f *fixture) unread(t *testing.T, user int64, ref domain.ConversationRef) int64 {
	t.Helper()
	n, err := f.reads.UnreadCount(context.Background(), user, ref)
	require.NoError(t, err)
	return n
}
