package service

import (
	"context"
	"sort"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

const unreadFanOut = 8

// ConversationIndex is a read-only view over the message log and the
// conversation heads written alongside it.
type ConversationIndex struct {
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	cursors       repository.ReadCursorRepository
	members       repository.MembershipProvider
	identities    repository.IdentityProvider
	st            *Storage
}

// NewConversationIndex builds the index. identities may be nil, in which
// case direct conversations are titled by peer id.
func NewConversationIndex(
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	cursors repository.ReadCursorRepository,
	members repository.MembershipProvider,
	identities repository.IdentityProvider,
	st *Storage,
) *ConversationIndex {
	return &ConversationIndex{
		conversations: conversations,
		messages:      messages,
		cursors:       cursors,
		members:       members,
		identities:    identities,
		st:            st,
	}
}

// ListForUser returns every live conversation of userID, newest activity
// first. Channels come from the membership provider, direct pairs from the
// heads kept per canonical pair. A conversation without a visible top-level
// message is not listed.
func (x *ConversationIndex) ListForUser(ctx context.Context, userID int64) ([]domain.ConversationSummary, error) {
	channels, err := call(ctx, x.st, "membership.channels", true, func(c context.Context) ([]domain.ChannelInfo, error) {
		return x.members.ChannelsForUser(c, userID)
	})
	if err != nil {
		return nil, err
	}

	refs := make([]domain.ConversationRef, 0, len(channels))
	for _, ch := range channels {
		refs = append(refs, domain.ChannelRef(ch.ID))
	}
	channelHeads, err := call(ctx, x.st, "conversations.heads", true, func(c context.Context) (map[string]domain.ConversationHead, error) {
		return x.conversations.GetHeads(c, refs)
	})
	if err != nil {
		return nil, err
	}
	directHeads, err := call(ctx, x.st, "conversations.direct_heads", true, func(c context.Context) ([]domain.ConversationHead, error) {
		return x.conversations.ListDirectHeads(c, userID)
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ConversationSummary, 0, len(channelHeads)+len(directHeads))
	for _, ch := range channels {
		head, ok := channelHeads[domain.ChannelRef(ch.ID).Key()]
		if !ok {
			continue
		}
		s := summaryFromHead(head)
		s.ChannelID = ch.ID
		s.Title = ch.Name
		s.Avatar = ch.AvatarURL
		summaries = append(summaries, s)
	}

	peers := make([]int64, 0, len(directHeads))
	for _, head := range directHeads {
		s := summaryFromHead(head)
		s.PeerID = head.Ref.Peer(userID)
		s.Title = strconv.FormatInt(s.PeerID, 10)
		peers = append(peers, s.PeerID)
		summaries = append(summaries, s)
	}
	if err := x.applyProfiles(ctx, summaries, peers); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(unreadFanOut)
	for i := range summaries {
		g.Go(func() error {
			ref, err := domain.ParseConversationKey(summaries[i].Key)
			if err != nil {
				return err
			}
			n, err := x.unreadCount(gctx, userID, ref)
			if err != nil {
				return err
			}
			summaries[i].UnreadCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if !a.LastMessageAt.Equal(b.LastMessageAt) {
			return a.LastMessageAt.After(b.LastMessageAt)
		}
		return a.LastMessageID > b.LastMessageID
	})
	return summaries, nil
}

func summaryFromHead(head domain.ConversationHead) domain.ConversationSummary {
	return domain.ConversationSummary{
		Key:           head.Ref.Key(),
		Kind:          head.Ref.Kind,
		LastMessageID: head.LastMessageID,
		Preview:       domain.Preview(head.LastContent),
		LastMessageAt: head.LastMessageAt,
	}
}

func (x *ConversationIndex) applyProfiles(ctx context.Context, summaries []domain.ConversationSummary, peers []int64) error {
	if x.identities == nil || len(peers) == 0 {
		return nil
	}
	profiles, err := call(ctx, x.st, "identity.profiles", true, func(c context.Context) (map[int64]domain.Profile, error) {
		return x.identities.Profiles(c, peers)
	})
	if err != nil {
		return err
	}
	for i := range summaries {
		p, ok := profiles[summaries[i].PeerID]
		if summaries[i].Kind != domain.KindDirect || !ok {
			continue
		}
		summaries[i].Title = p.DisplayName
		if p.DisplayName == "" {
			summaries[i].Title = p.Username
		}
		summaries[i].Avatar = p.AvatarURL
	}
	return nil
}

// unreadCount counts top-level, non-deleted messages past the user's
// cursor that someone else wrote. A missing cursor counts from the start.
func (x *ConversationIndex) unreadCount(ctx context.Context, userID int64, ref domain.ConversationRef) (int64, error) {
	cur, err := call(ctx, x.st, "cursors.get", true, func(c context.Context) (*domain.ReadCursor, error) {
		return x.cursors.Get(c, userID, ref.Key())
	})
	if err != nil {
		return 0, err
	}
	var after int64
	if cur != nil {
		after = cur.LastReadMessageID
	}
	return call(ctx, x.st, "messages.count_after", true, func(c context.Context) (int64, error) {
		return x.messages.CountAfter(c, ref, after, userID)
	})
}
