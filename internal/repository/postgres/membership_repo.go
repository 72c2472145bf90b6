package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vedran77/pulsecore/internal/domain"
)

// MembershipRepo answers access questions from the workspace and channel
// tables owned by the team subsystem.
type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) IsMember(ctx context.Context, userID int64, ref domain.ConversationRef) (bool, error) {
	role, err := r.Role(ctx, userID, ref)
	return role != domain.RoleNone, err
}

// Role resolves access the same way for every caller: a public channel is
// open to its workspace members, a private one only to channel members, and
// a direct conversation only to its two participants.
func (r *MembershipRepo) Role(ctx context.Context, userID int64, ref domain.ConversationRef) (domain.Role, error) {
	if ref.IsDirect() {
		if ref.Includes(userID) {
			return domain.RoleMember, nil
		}
		return domain.RoleNone, nil
	}

	var (
		chType        string
		channelRole   *string
		workspaceRole *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT c.type, cm.role, wm.role
		FROM channels c
		LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $2
		LEFT JOIN workspace_members wm ON wm.workspace_id = c.workspace_id AND wm.user_id = $2
		WHERE c.id = $1 AND c.archived_at IS NULL`, ref.ChannelID, userID,
	).Scan(&chType, &channelRole, &workspaceRole)
	if isNoRows(err) {
		return domain.RoleNone, nil
	}
	if err != nil {
		return domain.RoleNone, err
	}

	ch := parseRole(channelRole)
	if chType != "public" {
		return ch, nil
	}
	ws := parseRole(workspaceRole)
	if ws == domain.RoleNone {
		return domain.RoleNone, nil
	}
	return max(ws, ch), nil
}

func (r *MembershipRepo) ChannelsForUser(ctx context.Context, userID int64) ([]domain.ChannelInfo, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.name, c.avatar_url
		FROM channels c
		WHERE c.archived_at IS NULL AND (
			(c.type = 'public' AND EXISTS (
				SELECT 1 FROM workspace_members wm
				WHERE wm.workspace_id = c.workspace_id AND wm.user_id = $1))
			OR (c.type <> 'public' AND EXISTS (
				SELECT 1 FROM channel_members cm
				WHERE cm.channel_id = c.id AND cm.user_id = $1))
		)
		ORDER BY c.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	channels := []domain.ChannelInfo{}
	for rows.Next() {
		var ch domain.ChannelInfo
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.AvatarURL); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

func parseRole(s *string) domain.Role {
	if s == nil {
		return domain.RoleNone
	}
	return domain.ParseRole(*s)
}
