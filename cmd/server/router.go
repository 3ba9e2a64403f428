package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mintgate/internal/mint/handler"
	"mintgate/internal/platform/config"
	"mintgate/internal/platform/metrics"
	"mintgate/internal/platform/middleware"
	"mintgate/internal/ratelimit"
	"mintgate/pkg/platform/middleware/metadata"
	"mintgate/pkg/platform/middleware/requesttime"
)

func newRouter(
	cfg config.Config,
	log *slog.Logger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
	mint *handler.Handler,
	limits ratelimit.Store,
	pingers map[string]func(context.Context) error,
) (http.Handler, error) {
	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(proxies))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Latency(m))
	// CORS sits on the root router so preflight OPTIONS requests, which match
	// no route, are still answered.
	r.Use(middleware.CORS(cfg.Server.FrontendOrigin))

	checks := make(map[string]handler.Pinger, len(pingers))
	for name, ping := range pingers {
		checks[name] = ping
	}
	r.Get("/healthz", handler.Health(checks))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
		r.Use(ratelimit.Middleware(limits, cfg.Limits.PerIP, cfg.Limits.Window, log))
		r.Use(middleware.ContentTypeJSON)
		mint.Register(r)
	})
	return r, nil
}
