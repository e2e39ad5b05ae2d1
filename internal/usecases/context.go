package usecases

import "context"

type userIDKey struct{}

// WithUserID tags ctx with the caller identity recorded in the usage log.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}
