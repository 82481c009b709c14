package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/okrforge/gateway/internal/auth"
	"github.com/okrforge/gateway/internal/httputil"
	"github.com/okrforge/gateway/internal/telemetry"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRateLimitReset     = "X-RateLimit-Reset"
)

// Middleware enforces per-caller admission before the body is read. It runs
// after the auth middleware; requests without a caller pass through so the
// auth layer's 401 stays authoritative.
func Middleware(limiter *Limiter, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			caller, ok := auth.CallerFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.Admit(r.Context(), caller.Subject, time.Now())

			w.Header().Set(headerRateLimitLimit, strconv.FormatInt(result.Limit, 10))
			w.Header().Set(headerRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.UTC().Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"caller", caller.Subject,
					"reason", string(result.Reason),
					"retry_after_s", result.RetryAfterSeconds,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit(string(result.Reason))
				}
				httputil.WriteRateLimitError(w, limitMessage(result), result.RetryAfterSeconds)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func limitMessage(result Result) string {
	if result.Reason == ReasonTooFrequent {
		return fmt.Sprintf("Requests too frequent. Retry after %d seconds", result.RetryAfterSeconds)
	}
	return fmt.Sprintf("Rate limit quota of %d requests per window exceeded. Retry after %d seconds",
		result.Limit, result.RetryAfterSeconds)
}
