package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/okrforge/gateway/internal/httputil"
)

// Middleware returns a chi middleware that extracts the caller identity from
// the Authorization header. Requests without a decodable bearer credential
// are rejected as unauthenticated.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.WriteAuthError(w, "Missing Authorization header. Use: Authorization: Bearer <token>")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == authHeader {
				httputil.WriteAuthError(w, "Invalid Authorization format. Use: Authorization: Bearer <token>")
				return
			}
			if token == "" {
				httputil.WriteAuthError(w, "Empty bearer token")
				return
			}

			subject, err := SubjectFromToken(token)
			if err != nil {
				slog.Warn("auth failed: unparseable credential",
					"request_id", reqID,
					"error", err,
					"token_prefix", safePrefix(token),
				)
				httputil.WriteAuthError(w, "Invalid bearer token")
				return
			}

			ctx := ContextWithCaller(r.Context(), &Caller{Subject: subject})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// safePrefix returns a safe-to-log prefix of a token (never the full token).
func safePrefix(token string) string {
	if len(token) > 20 {
		return token[:20] + "..."
	}
	return token
}
