package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/reelgrab/internal/proxy"
	"github.com/shehryarbajwa/reelgrab/internal/ratelimit"
)

// Metrics is what the router needs from the metrics package
type Metrics interface {
	HTTPObserver
	Handler() http.Handler
}

// SetupRoutes configures all HTTP routes. A nil limiter disables rate limiting
// and a nil proxy server leaves the debug websocket unrouted.
func (h *Handler) SetupRoutes(proxyServer *proxy.Server, rateLimiter *ratelimit.Limiter, trusted TrustedProxies, m Metrics) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	var observer HTTPObserver
	if m != nil {
		observer = m
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(accessLogMiddleware(h.logger, observer))
	api.Use(corsMiddleware)

	// Capture is rate limited; status and debug endpoints are not
	var capture http.Handler = http.HandlerFunc(h.CaptureContent)
	if rateLimiter != nil {
		capture = RateLimitMiddleware(rateLimiter, trusted)(capture)
	}
	api.Handle("/content", capture).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/session", h.GetSession).Methods(http.MethodGet, http.MethodOptions)

	if proxyServer != nil {
		api.HandleFunc("/debug/ws", proxyServer.HandleDebugConnection).Methods(http.MethodGet)
	}

	return r
}
