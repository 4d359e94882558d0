package platform

import "context"

type contextKey string

const tokenKey contextKey = "platform_token"

// WithToken attach the learner's bearer token, forwarded on every platform call
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext extract the learner's bearer token if present
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey).(string)
	return token
}
