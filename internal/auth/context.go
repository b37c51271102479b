package auth

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const ownerIDKey ctxKey = "owner_id"

// WithOwnerID stores the resolved owner in ctx.
func WithOwnerID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ownerIDKey, id)
}

// OwnerIDFromCtx returns the owner stored by the session guard.
// Returns uuid.Nil and false when missing.
func OwnerIDFromCtx(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ownerIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
