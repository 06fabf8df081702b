package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
)

// newAdminRouter serves Prometheus metrics and a liveness probe on the admin port.
func newAdminRouter(serviceName string, opts ...otelmux.Option) *mux.Router {
	admin := mux.NewRouter()
	admin.Use(otelmux.Middleware(serviceName, opts...))
	admin.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	admin.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)
	return admin
}
