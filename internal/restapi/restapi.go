// Package restapi serves the board over HTTP: the published arrival queues,
// the alert state, health and Prometheus metrics.
package restapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/transitboard/transitboard/internal/app"
	"github.com/transitboard/transitboard/internal/clock"
)

type RestAPI struct {
	*app.Application
	rateLimiter   *RateLimitMiddleware
	staleDetector *StaleDetector
}

func NewRestAPI(application *app.Application) *RestAPI {
	if application.Clock == nil {
		application.Clock = clock.RealClock{}
	}
	threshold := 3 * application.Config.Feeds.UpdateInterval
	if threshold <= 0 {
		threshold = 90 * time.Second
	}
	rateLimiter := NewRateLimitMiddleware(application.Config.Server.RateLimit, time.Second, nil, application.Clock)
	if application.APIKeysRequired() {
		rateLimiter.KeyClientsBy(func(key string) bool { return !application.IsInvalidAPIKey(key) })
	}
	return &RestAPI{
		Application:   application,
		rateLimiter:   rateLimiter,
		staleDetector: NewStaleDetector().WithThreshold(threshold),
	}
}

// SetRoutes registers every endpoint on mux. API endpoints go through the
// API key check, rate limiting and cache headers; health and metrics do not.
func (api *RestAPI) SetRoutes(mux *http.ServeMux) {
	cacheSeconds := api.Config.Server.CacheSeconds

	handle := func(pattern string, h http.HandlerFunc) {
		var handler http.Handler = h
		handler = CacheControlMiddleware(cacheSeconds, handler)
		handler = api.requireAPIKey(handler)
		handler = api.rateLimiter.Handler()(handler)
		mux.Handle(pattern, handler)
	}

	handle("GET /api/board", api.boardHandler)
	handle("GET /api/lines/{line}", api.lineHandler)
	handle("GET /api/stations/{index}", api.stationHandler)
	handle("GET /api/alerts", api.alertsHandler)

	mux.HandleFunc("GET /healthz", api.healthHandler)
	if api.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(api.Metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// Handler wraps mux with the request-wide middleware chain.
func (api *RestAPI) Handler(mux *http.ServeMux) http.Handler {
	var handler http.Handler = mux
	handler = MetricsHandler(api.Metrics)(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	handler = RequestIDMiddleware(handler)
	return handler
}

func (api *RestAPI) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.sendUnauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background work owned by the API.
func (api *RestAPI) Shutdown() {
	api.rateLimiter.Stop()
}
