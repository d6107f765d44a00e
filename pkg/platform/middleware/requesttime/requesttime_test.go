package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custodia/pkg/requestcontext"
)

func TestWithPinsOneTimePerRequest(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	var seen []time.Time
	h := With(func() time.Time {
		calls++
		return fixed.Add(time.Duration(calls) * time.Second)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, requestcontext.Now(r.Context()), requestcontext.Now(r.Context()))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, calls)
	assert.Equal(t, []time.Time{fixed.Add(time.Second), fixed.Add(time.Second)}, seen)
}

func TestWithKeepsAnUpstreamPin(t *testing.T) {
	pinned := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	var got time.Time
	h := With(time.Now)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = requestcontext.Now(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(requestcontext.WithTime(req.Context(), pinned))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, pinned, got)
}
