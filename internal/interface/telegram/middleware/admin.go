package middleware

import (
	"context"
)

// AdminLookup checks the admins table.
type AdminLookup interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// AllowList is the static admin list from configuration.
type AllowList interface {
	IsAllowListed(userID int64) bool
}

// AdminGuard authorizes admin actions. A user is an admin when the
// configured allow-list contains them or the admins table has a row.
type AdminGuard struct {
	allowList AllowList
	store     AdminLookup
}

// NewAdminGuard creates a guard. allowList and store may be nil.
func NewAdminGuard(allowList AllowList, store AdminLookup) *AdminGuard {
	return &AdminGuard{allowList: allowList, store: store}
}

// IsAdmin reports whether userID may use admin actions. The allow-list
// short-circuits the store lookup.
func (g *AdminGuard) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if g.allowList != nil && g.allowList.IsAllowListed(userID) {
		return true, nil
	}
	if g.store == nil {
		return false, nil
	}
	return g.store.IsAdmin(ctx, userID)
}
