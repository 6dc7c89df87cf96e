package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler"
)

// Deadline cancels a request's context after timeout and answers with the
// checkout error envelope. The attempt survives the cut, so the client
// retries or polls with the same temp_order_id.
func Deadline(timeout time.Duration) func(http.Handler) http.Handler {
	body, _ := json.Marshal(handler.APIResponse{
		Error: &handler.APIError{
			Code:    handler.ErrCodeTimeout,
			Message: "request timed out, retry with the same temp_order_id",
		},
	})

	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, timeout, string(body))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Routes set their own type; this only shows on the timeout reply.
			w.Header().Set("Content-Type", "application/json")
			bounded.ServeHTTP(w, r)
		})
	}
}
