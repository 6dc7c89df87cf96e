package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler"
)

// RecoverPanics turns a panicking handler into a 500 INTERNAL_ERROR reply.
// The panic value is logged, never sent to the client.
func RecoverPanics(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				logger.Error("checkout handler panicked",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				handler.WriteError(w, fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
