package session

import "context"

type managerContextKey struct{}

// NewContext returns a context carrying m for views.
func NewContext(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerContextKey{}, m)
}

// FromContext returns the Manager attached by NewContext, or nil.
func FromContext(ctx context.Context) *Manager {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(managerContextKey{}).(*Manager)
	return m
}
