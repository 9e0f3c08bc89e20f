package utils

import (
	"context"
)

type contextKey string

var (
	ContextKeyUserId        = contextKey("user_id")
	ContextKeyCorrelationId = contextKey("correlation_id")
)

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	userId, ok := ctx.Value(ContextKeyUserId).(int)
	return userId, ok
}

func SetUserIdInContext(ctx context.Context, userId int) context.Context {
	return context.WithValue(ctx, ContextKeyUserId, userId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyCorrelationId).(string)
	return id, ok
}

func SetCorrelationIdInContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationId, id)
}
