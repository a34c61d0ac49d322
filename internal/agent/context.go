package agent

import (
	"context"
)

// userIDKey is an unexported context key for zero-allocation type safety.
type userIDKey struct{}

// UserIDFromContext retrieves the user identity from context.
// Returns empty string if not set. Memory tools read it so one user's
// conversations never leak into another user's context.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// ContextWithUserID stores the user identity in context. The Slack layer
// injects the requesting user's ID before every agent execution.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}
