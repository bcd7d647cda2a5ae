package httpapi

import (
	"context"

	"github.com/blite-io/blite-server/internal/identity"
	"github.com/blite-io/blite-server/internal/logging"
)

type ctxKey string

const (
	userCtxKey       ctxKey = "blite_user"
	physicalCtxKey   ctxKey = "blite_physical_collection"
)

func withPhysicalCollection(ctx context.Context, physical string) context.Context {
	return context.WithValue(ctx, physicalCtxKey, physical)
}

func physicalCollectionFromContext(ctx context.Context) string {
	v, _ := ctx.Value(physicalCtxKey).(string)
	return v
}

func withUser(ctx context.Context, u identity.User) context.Context {
	ctx = context.WithValue(ctx, userCtxKey, u)
	ctx = logging.WithUser(ctx, u.Username)
	return ctx
}

func userFromContext(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userCtxKey).(identity.User)
	return u, ok
}

func traceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(logging.TraceIDKey).(string)
	return v
}
