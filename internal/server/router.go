package server

import "net/http"

// NewRouter builds the HTTP mux hosting liveness/readiness and metrics.
// server.New wraps the whole mux in CoreMiddleware, whose response
// writer does not implement http.Hijacker, so a WebSocket upgrade
// endpoint registered on this mux (via ws.NewAdopted) cannot complete
// its handshake when the mux is served through server.New.
func NewRouter(health *HealthHandler, metrics *Metrics, metricsPath string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/health", health)
	mux.Handle("/healthz", health)
	mux.Handle("/ready", health)
	mux.Handle("/readyz", health)

	if metrics != nil {
		mux.Handle(metricsPath, metrics.Handler())
	}

	return mux
}
