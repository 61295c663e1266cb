package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	PORT = 2425
)

func TimeoutMiddleware(timeout time.Duration) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.TimeoutHandler(h, timeout, "server timed out")
	}
}

// SlowRequestLogger logs any request that took longer than the threshold.
// Async submissions should return immediately; a slow submit usually means
// the control plane is degraded, which is worth a log line.
func SlowRequestLogger(logger *zap.Logger, threshold time.Duration) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			h.ServeHTTP(w, r)
			if elapsed := time.Since(start); elapsed > threshold {
				logger.Warn("slow http request",
					zap.String("path", r.URL.Path),
					zap.Duration("elapsed", elapsed),
				)
			}
		})
	}
}
