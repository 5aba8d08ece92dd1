// Package requesttime pins one "now" per request. Time-based policies
// (validity window, age) read it through requestcontext.Now, so every rule
// in a verification judges against the same instant.
package requesttime

import (
	"net/http"
	"time"

	"vpgate/pkg/requestcontext"
)

// Middleware pins the current time. A clock may be supplied for tests.
func Middleware(clock func() time.Time) func(http.Handler) http.Handler {
	if clock == nil {
		clock = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithTime(r.Context(), clock())))
		})
	}
}
