package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/HasnainAli-max/pixel-proof-2/internal/auth"
	"github.com/HasnainAli-max/pixel-proof-2/internal/handler"
	"github.com/HasnainAli-max/pixel-proof-2/internal/store"
)

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequireAuth validates the bearer token, upserts the user row from the
// verified claims, and stores the user in the request context.
func RequireAuth(verifier TokenVerifier, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				handler.WriteError(w, http.StatusUnauthorized, handler.CodeUnauthorized, "missing or malformed authorization header")
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				slog.Debug("token rejected", "path", r.URL.Path, "error", err)
				handler.WriteError(w, http.StatusUnauthorized, handler.CodeUnauthorized, "invalid token")
				return
			}

			user, err := users.Upsert(claims.Subject, claims.Email, claims.Name)
			if err != nil {
				slog.Error("upsert user from claims", "subject", claims.Subject, "error", err)
				handler.WriteError(w, http.StatusInternalServerError, handler.CodeInternal, "internal error")
				return
			}

			ctx := auth.WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
