package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type contextKey string

const sessionKey contextKey = "session"

// WithSession returns a context carrying sess.
func WithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionKey, sess)
}

// FromContext returns the request's authenticated session.
func FromContext(ctx context.Context) (*Session, bool) {
	sess, ok := ctx.Value(sessionKey).(*Session)
	if !ok || sess == nil {
		return nil, false
	}
	return sess, true
}

// IsAuthenticated reports whether ctx carries an authenticated session.
func IsAuthenticated(ctx context.Context) bool {
	_, ok := FromContext(ctx)
	return ok
}

// Middleware resolves the session_hint cookie against store and injects
// valid sessions into the request context. A nil store leaves every
// request anonymous. Store failures are logged and treated as anonymous.
func Middleware(store SessionStore, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hint := HintFromRequest(r)
			if store == nil || hint == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := store.Lookup(r.Context(), hint)
			switch {
			case errors.Is(err, ErrNoSession):
			case err != nil:
				logger.Warn("session lookup failed", zap.Error(err))
			case sess.Valid(time.Now()):
				r = r.WithContext(WithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	}
}
