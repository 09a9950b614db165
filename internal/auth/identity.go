package auth

import (
	"context"
)

// Identity is the authenticated user behind a request.
type Identity struct {
	PrincipalID string `json:"principal_id"`
	Name        string `json:"name,omitempty"`
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by Middleware, or nil.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
