// cmd/server/ops.go
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// newOpsMux serves Prometheus metrics and health checks backed by the shared health server.
func newOpsMux(healthServer *health.Server) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", healthCheck(healthServer, "OK", "Service Unavailable"))
	// Readiness check (same as healthz for now)
	mux.HandleFunc("/readyz", healthCheck(healthServer, "Ready", "Not Ready"))

	return mux
}

func healthCheck(healthServer *health.Server, okBody, failBody string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(failBody))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(okBody))
	}
}
