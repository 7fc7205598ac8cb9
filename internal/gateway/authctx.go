package gateway

import "context"

type ctxKey string

const userIDKey ctxKey = "webapi.userID"

// WithUserID stores the authenticated WebAPI user id in context.
func WithUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromCtx fetches the user id stored by WithUserID.
func UserIDFromCtx(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
