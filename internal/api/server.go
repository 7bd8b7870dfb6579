package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shehryarbajwa/rentharvest/internal/bus"
	"github.com/shehryarbajwa/rentharvest/internal/ratelimit"
)

// SetupRoutes configures all HTTP routes
func (h *Handler) SetupRoutes(busServer *bus.Server, rateLimiter *ratelimit.Limiter, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.Health).Methods("GET")
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	api := r.PathPrefix("/v1").Subrouter()

	// Mutating routes are rate limited
	mutating := api.PathPrefix("").Subrouter()
	mutating.Use(RateLimitMiddleware(rateLimiter))

	mutating.HandleFunc("/session", h.StartSession).Methods("POST")
	mutating.HandleFunc("/session/items", h.UpdateSession).Methods("PUT")
	mutating.HandleFunc("/session", h.StopSession).Methods("DELETE")
	mutating.HandleFunc("/payments", h.StorePayment).Methods("POST")
	mutating.HandleFunc("/tabs", h.TrackTab).Methods("POST")
	mutating.HandleFunc("/tabs/close", h.CloseTabs).Methods("POST")

	// Reads, the tab feed and the bus are polled constantly by the engine
	api.HandleFunc("/session", h.GetSession).Methods("GET")
	api.HandleFunc("/session/export", h.ExportSession).Methods("GET")
	api.HandleFunc("/payments", h.GetPayment).Methods("GET")
	api.HandleFunc("/tabs/recent", h.MostRecentTab).Methods("GET")
	api.HandleFunc("/tabs/loaded", h.TabLoaded).Methods("POST")
	api.Handle("/bus", busServer).Methods("GET")

	r.Use(corsMiddleware)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Client-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
