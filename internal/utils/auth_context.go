package utils

import "context"

type authContextKey struct{}

// WithAuthenticatedUser stores user in ctx for code that has no access to the HTTP request,
// such as MCP tool handlers.
func WithAuthenticatedUser(ctx context.Context, user *AuthenticatedUser) context.Context {
	return context.WithValue(ctx, authContextKey{}, user)
}

func GetAuthenticatedUser(ctx context.Context) (*AuthenticatedUser, bool) {
	user, ok := ctx.Value(authContextKey{}).(*AuthenticatedUser)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}
