package common

import (
	"context"
	"slices"
)

type ctxKey string

const (
	principalKey  ctxKey = "auth/principal"
	callerSlotKey ctxKey = "auth/caller-slot"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID int64
	Roles  []string
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// WithPrincipal stores the authenticated caller on the provided context and
// fills the caller slot of an enclosing WithCallerSlot, if any.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if slot, ok := ctx.Value(callerSlotKey).(*Principal); ok {
		*slot = p
	}
	return context.WithValue(ctx, principalKey, p)
}

// WithCallerSlot lets outer middleware learn the caller that inner middleware
// authenticated. The slot stays zero when nobody called WithPrincipal.
func WithCallerSlot(ctx context.Context) (context.Context, *Principal) {
	slot := &Principal{}
	return context.WithValue(ctx, callerSlotKey, slot), slot
}

// PrincipalFrom extracts the authenticated caller from the context if present.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok && p.UserID > 0
}

// UserID returns the authenticated user id, if any.
func UserID(ctx context.Context) (int64, bool) {
	p, ok := PrincipalFrom(ctx)
	return p.UserID, ok
}
