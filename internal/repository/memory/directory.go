package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vedran77/pulsecore/internal/domain"
)

// Directory is an in-process membership and identity provider.
type Directory struct {
	mu       sync.RWMutex
	channels map[int64]domain.ChannelInfo
	members  map[int64]map[int64]domain.Role
	profiles map[int64]domain.Profile
}

func NewDirectory() *Directory {
	return &Directory{
		channels: make(map[int64]domain.ChannelInfo),
		members:  make(map[int64]map[int64]domain.Role),
		profiles: make(map[int64]domain.Profile),
	}
}

func (d *Directory) AddChannel(ch domain.ChannelInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.ID] = ch
	if d.members[ch.ID] == nil {
		d.members[ch.ID] = make(map[int64]domain.Role)
	}
}

func (d *Directory) SetRole(channelID, userID int64, role domain.Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[channelID] == nil {
		d.members[channelID] = make(map[int64]domain.Role)
	}
	if role == domain.RoleNone {
		delete(d.members[channelID], userID)
		return
	}
	d.members[channelID][userID] = role
}

func (d *Directory) AddProfile(p domain.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.profiles[p.UserID] = p
}

func (d *Directory) IsMember(ctx context.Context, userID int64, ref domain.ConversationRef) (bool, error) {
	role, err := d.Role(ctx, userID, ref)
	return role != domain.RoleNone, err
}

func (d *Directory) Role(ctx context.Context, userID int64, ref domain.ConversationRef) (domain.Role, error) {
	if ref.IsDirect() {
		if ref.Includes(userID) {
			return domain.RoleMember, nil
		}
		return domain.RoleNone, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.members[ref.ChannelID][userID], nil
}

func (d *Directory) ChannelsForUser(ctx context.Context, userID int64) ([]domain.ChannelInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := []domain.ChannelInfo{}
	for id, members := range d.members {
		if _, ok := members[userID]; !ok {
			continue
		}
		ch, ok := d.channels[id]
		if !ok {
			ch = domain.ChannelInfo{ID: id}
		}
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *Directory) Profiles(ctx context.Context, userIDs []int64) (map[int64]domain.Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[int64]domain.Profile, len(userIDs))
	for _, id := range userIDs {
		if p, ok := d.profiles[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
