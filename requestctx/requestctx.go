// Package requestctx binds per-request data (logger, request ID, start
// time) to the context.Context flowing through one request's call graph.
// Accessors fail loudly when no request context is bound so that a missing
// propagation step is caught in tests instead of silently reading stale or
// zero values.
package requestctx

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotBound is returned by accessors called outside a bound request
// context. Use Has to branch on availability without an error.
var ErrNotBound = errors.New("requestctx: no request context bound")

type contextKey struct{}

// Context carries the per-request values visible to the request's call
// graph. It is created once per inbound request and never shared across
// concurrent requests.
type Context struct {
	Logger    zerolog.Logger
	RequestID string
	StartTime time.Time
}

// With returns a context carrying rc. Nested calls shadow the outer value
// for their own subtree; the outer value is observed again once the derived
// context goes out of scope.
func With(ctx context.Context, rc Context) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// Has reports whether a request context is bound. It never fails and is
// the only safe way to branch on ambient-context availability.
func Has(ctx context.Context) bool {
	_, ok := ctx.Value(contextKey{}).(Context)
	return ok
}

// FromContext returns the bound request context or ErrNotBound.
func FromContext(ctx context.Context) (Context, error) {
	rc, ok := ctx.Value(contextKey{}).(Context)
	if !ok {
		return Context{}, ErrNotBound
	}
	return rc, nil
}

// Logger returns the request-scoped logger or ErrNotBound.
func Logger(ctx context.Context) (zerolog.Logger, error) {
	rc, err := FromContext(ctx)
	if err != nil {
		return zerolog.Nop(), err
	}
	return rc.Logger, nil
}

// RequestID returns the request correlation ID or ErrNotBound.
func RequestID(ctx context.Context) (string, error) {
	rc, err := FromContext(ctx)
	if err != nil {
		return "", err
	}
	return rc.RequestID, nil
}

// StartTime returns the instant the request entered the pipeline or
// ErrNotBound.
func StartTime(ctx context.Context) (time.Time, error) {
	rc, err := FromContext(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return rc.StartTime, nil
}
