// Package staff carries the authenticated staff member through request
// context. Authorization policy lives elsewhere; this only answers "who".
package staff

import "context"

type ctxKey string

const actorKey ctxKey = "clinicops.actor_id"

// WithActor stores the acting staff member's id in context.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// ActorFromContext extracts the acting staff member's id if present.
func ActorFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(actorKey)
	if val == nil {
		return "", false
	}
	actorID, ok := val.(string)
	return actorID, ok && actorID != ""
}
