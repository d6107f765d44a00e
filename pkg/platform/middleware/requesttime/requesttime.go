// Package requesttime pins a single "now" per HTTP request, so audit
// timestamps and escrow state written by one request agree.
package requesttime

import (
	"net/http"
	"time"

	"custodia/pkg/requestcontext"
)

// Clock returns the instant a request is stamped with.
type Clock func() time.Time

// Middleware stamps each request with the wall clock in UTC.
func Middleware(next http.Handler) http.Handler {
	return With(func() time.Time { return time.Now().UTC() })(next)
}

// With stamps each request with clock(). Handlers read the stamp through
// requestcontext.Now.
func With(clock Clock) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, pinned := requestcontext.TimeFrom(r.Context()); pinned {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), clock())))
		})
	}
}
