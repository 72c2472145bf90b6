package domain

type Role int

const (
	RoleNone Role = iota
	RoleMember
	RoleModerator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	}
	return "none"
}

// CanModerate reports whether the role may act on other members' messages.
func (r Role) CanModerate() bool { return r >= RoleModerator }

// ParseRole maps stored role names (channel and workspace roles) onto Role.
func ParseRole(s string) Role {
	switch s {
	case "member":
		return RoleMember
	case "moderator":
		return RoleModerator
	case "admin", "owner":
		return RoleAdmin
	}
	return RoleNone
}

// ChannelInfo is the externally owned channel data needed for listings.
type ChannelInfo struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}
