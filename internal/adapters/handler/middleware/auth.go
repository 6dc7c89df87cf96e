package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/DanielPopoola/ficmart-checkout/internal/adapters/handler"
	"github.com/DanielPopoola/ficmart-checkout/internal/auth"
	"github.com/DanielPopoola/ficmart-checkout/internal/core/domain"
)

type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticate attaches verified claims to the request context. Requests
// without a token pass through as guests; handlers that need a customer
// reject them. A token that is present but invalid is rejected here.
func Authenticate(parser TokenParser, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := parser.Parse(token)
			if err != nil {
				if !errors.Is(err, auth.ErrInvalidToken) {
					logger.Error("token verification failed", "error", err)
				}
				handler.WriteError(w, &domain.DomainError{
					Code:    handler.ErrCodeUnauthorized,
					Message: "invalid or expired token",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
