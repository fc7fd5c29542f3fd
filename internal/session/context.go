package session

import "context"

type contextKey struct{}

// WithContext returns a copy of ctx carrying session.
func WithContext(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKey{}, session)
}

// FromContext returns the session stored on ctx, if any.
func FromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(contextKey{}).(Session)
	return session, ok
}
