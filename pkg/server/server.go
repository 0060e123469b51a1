// Package server assembles the HTTP surface of the broker: the single
// broker endpoint, an optional metrics endpoint, and the middleware stack.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/interstate-love-song/broker/pkg/logger"
	"github.com/interstate-love-song/broker/pkg/protocol"
	"github.com/interstate-love-song/broker/pkg/session"
)

const requestTimeout = 30 * time.Second

// Config carries the dependencies for the router.
type Config struct {
	Handler  *protocol.Handler
	Sessions *session.Manager
	Version  string

	// EnableMetrics mounts GET /metrics. Off by default so the exposed
	// surface stays at the two broker routes.
	EnableMetrics bool
}

// NewRouter builds the broker's HTTP handler.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
		loggingMiddleware,
	)

	r.Mount("/pcoip-broker/xml", BrokerRouter(cfg.Handler, cfg.Sessions, cfg.Version))

	if cfg.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// loggingMiddleware logs one line per request. Request bodies and
// credentials never reach the log.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Infow("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
