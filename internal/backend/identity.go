package backend

import "context"

type userKey struct{}

type tokenKey struct{}

type requestIDKey struct{}

// WithUser stores the authenticated caller on the context.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the caller stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	user, _ := ctx.Value(userKey{}).(*User)
	return user
}

// WithAccessToken stores the caller's bearer token so adapters can forward it.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessTokenFromContext returns the bearer token stored by WithAccessToken.
func AccessTokenFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// WithRequestID stores the inbound request id so adapters can correlate
// backend calls with the request that caused them.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id stored by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
