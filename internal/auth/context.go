package auth

import (
	"context"

	"github.com/HasnainAli-max/pixel-proof-2/internal/model"
)

type contextKey struct{}

// WithUser stores the authenticated user in the context.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// UserFromContext retrieves the authenticated user, or nil.
func UserFromContext(ctx context.Context) *model.User {
	u, _ := ctx.Value(contextKey{}).(*model.User)
	return u
}
