// Package requestcontext carries request-scoped values from the HTTP
// middleware to the services without importing net/http.
//
// Middleware writes, services read:
//
//	ctx = requestcontext.WithCaller(ctx, address)
//	caller := requestcontext.Caller(ctx)
//
// Tests pin the clock with WithTime.
package requestcontext

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

type key int

const (
	callerKey key = iota
	clientKey
	requestIDKey
	requestTimeKey
)

func value[T any](ctx context.Context, k key) (T, bool) {
	v, ok := ctx.Value(k).(T)
	return v, ok
}

// Caller is the authenticated address, or the zero address for anonymous
// requests.
func Caller(ctx context.Context) id.Address {
	caller, _ := value[id.Address](ctx, callerKey)
	return caller
}

// WithCaller is reserved for the auth middleware and tests.
func WithCaller(ctx context.Context, caller id.Address) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// ClientInfo describes where a request came from.
type ClientInfo struct {
	IP        string
	UserAgent string
	// Descriptor is the parsed "browser/os" form of UserAgent.
	Descriptor string
}

func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, info)
}

func ClientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := value[ClientInfo](ctx, clientKey)
	return info
}

func ClientIP(ctx context.Context) string {
	return ClientInfoFrom(ctx).IP
}

// Client is the parsed client descriptor.
func Client(ctx context.Context) string {
	return ClientInfoFrom(ctx).Descriptor
}

func RequestID(ctx context.Context) string {
	rid, _ := value[string](ctx, requestIDKey)
	return rid
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the pinned request time, or time.Now outside HTTP requests.
func Now(ctx context.Context) time.Time {
	if t, ok := TimeFrom(ctx); ok {
		return t
	}
	return time.Now()
}

// TimeFrom reports the pinned request time, if any.
func TimeFrom(ctx context.Context) (time.Time, bool) {
	return value[time.Time](ctx, requestTimeKey)
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}
