package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vedran77/pulsecore/internal/domain"
	"github.com/vedran77/pulsecore/internal/repository"
)

// Access answers membership questions through the external provider.
type Access struct {
	members repository.MembershipProvider
	st      *Storage
}

func NewAccess(members repository.MembershipProvider, st *Storage) *Access {
	return &Access{members: members, st: st}
}

type accessScopeKey struct{}

type accessEntry struct {
	user int64
	conv string
}

type accessScope struct {
	mu    sync.Mutex
	roles map[accessEntry]domain.Role
}

// WithAccessScope memoizes membership answers for the lifetime of ctx, so a
// request consults the provider at most once per conversation.
func WithAccessScope(ctx context.Context) context.Context {
	if _, ok := ctx.Value(accessScopeKey{}).(*accessScope); ok {
		return ctx
	}
	return context.WithValue(ctx, accessScopeKey{}, &accessScope{roles: make(map[accessEntry]domain.Role)})
}

// Role returns the caller's role, failing with ErrNotMember when there is none.
func (a *Access) Role(ctx context.Context, userID int64, ref domain.ConversationRef) (domain.Role, error) {
	if err := ref.Validate(); err != nil {
		return domain.RoleNone, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	entry := accessEntry{user: userID, conv: ref.Key()}
	scope, _ := ctx.Value(accessScopeKey{}).(*accessScope)
	if scope != nil {
		scope.mu.Lock()
		role, ok := scope.roles[entry]
		scope.mu.Unlock()
		if ok {
			return role, roleErr(role)
		}
	}

	role, err := call(ctx, a.st, "membership.role", true, func(c context.Context) (domain.Role, error) {
		return a.members.Role(c, userID, ref)
	})
	if err != nil {
		return domain.RoleNone, err
	}
	if scope != nil {
		scope.mu.Lock()
		scope.roles[entry] = role
		scope.mu.Unlock()
	}
	return role, roleErr(role)
}

func roleErr(role domain.Role) error {
	if role == domain.RoleNone {
		return ErrNotMember
	}
	return nil
}
