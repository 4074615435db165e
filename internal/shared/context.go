package shared

import (
	"context"
	"net/http"
	"strconv"
)

type contextKey string

const actorKey contextKey = "actor_id"

// ActorHeader carries the authenticated actor identity set by the upstream
// auth layer.
const ActorHeader = "X-Actor-ID"

// ContextWithActor stores the actor identity on the context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext returns the actor identity, or zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(actorKey).(int64); ok {
		return id
	}
	return 0
}

// ActorMiddleware extracts the actor identity from the request headers.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(ActorHeader); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
				r = r.WithContext(ContextWithActor(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
