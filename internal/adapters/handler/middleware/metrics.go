package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/metrics"
)

// Metrics records request counts and latency per route pattern. It must wrap
// the ServeMux directly so the matched pattern is visible after dispatch.
func Metrics(recorder *metrics.Recorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			recorder.HTTPRequest(route, strconv.Itoa(rec.status), time.Since(start))
		})
	}
}
