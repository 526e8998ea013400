package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/capitalize-ai/study-collab/pkg/metrics"
)

// RateLimit limits requests per client address. It runs ahead of Auth, so
// it also throttles requests carrying bad tokens.
func RateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(limitExceeded("ip", windowLength)),
	)
}

// UserRateLimit limits requests per authenticated caller. It must run after Auth.
func UserRateLimit(requestLimit int, windowLength time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestLimit,
		windowLength,
		httprate.WithKeyFuncs(callerKey),
		httprate.WithLimitHandler(limitExceeded("user", windowLength)),
	)
}

func callerKey(r *http.Request) (string, error) {
	if userID := GetUserID(r.Context()); userID != "" {
		return "user:" + userID, nil
	}
	ip, err := httprate.KeyByRealIP(r)
	return "ip:" + ip, err
}

func limitExceeded(scope string, window time.Duration) http.HandlerFunc {
	retry := strconv.Itoa(max(1, int(window.Seconds())))
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.RateLimited.WithLabelValues(scope).Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", retry)
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded","code":"RATE_LIMITED","retry_after":` + retry + `}`))
	}
}
