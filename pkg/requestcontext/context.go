// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them without importing net/http.
// Tests inject a fixed clock with WithTime so transition timestamps are
// deterministic.
package requestcontext

import (
	"context"
	"time"
)

type (
	staffIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// StaffID retrieves the authenticated staff member's identifier, or "" if the
// request is unauthenticated (runner-facing routes).
func StaffID(ctx context.Context) string {
	if v, ok := ctx.Value(staffIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithStaffID injects a staff identifier into the context.
func WithStaffID(ctx context.Context, staffID string) context.Context {
	return context.WithValue(ctx, staffIDKey{}, staffID)
}

// RequestID retrieves the request correlation id, or "" if not set.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a request correlation id into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request-scoped time if one was injected, else time.Now().
// Commit timestamps (checked_in_at, updated_at) flow through here so tests can
// pin the clock.
func Now(ctx context.Context) time.Time {
	if v, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithTime injects a fixed time into the context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
