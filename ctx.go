package identity

import (
	"context"
)

var widgetUserCtxKey = &contextKey{"widget_user"}
var resolvedIdentityCtxKey = &contextKey{"resolved_identity"}

type contextKey struct {
	name string
}

// WithContext sets the WidgetUser in the given context
func WithContext(r context.Context, user *WidgetUser) context.Context {
	return context.WithValue(r, widgetUserCtxKey, user)
}

// FromContext finds the widget user from the context.
func FromContext(ctx context.Context) (*WidgetUser, bool) {
	raw, ok := ctx.Value(widgetUserCtxKey).(*WidgetUser)
	return raw, ok
}

// WithResolvedIdentity sets the ResolvedIdentity in the given context
func WithResolvedIdentity(r context.Context, resolved ResolvedIdentity) context.Context {
	return context.WithValue(r, resolvedIdentityCtxKey, resolved)
}

// GetResolvedIdentity extracts the ResolvedIdentity from the standard context
func GetResolvedIdentity(ctx context.Context) (ResolvedIdentity, bool) {
	raw, ok := ctx.Value(resolvedIdentityCtxKey).(ResolvedIdentity)
	return raw, ok
}
