// Package requestid carries the request correlation id through a context so
// inbound handlers and outbound clients share it.
package requestid

import "context"

// Header is the HTTP header the id travels in.
const Header = "X-Request-ID"

type contextKey struct{}

// NewContext returns a copy of ctx carrying id.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the id carried by ctx, or "".
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
