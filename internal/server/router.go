package server

import (
	"net/http"

	"github.com/hookflow/hookflow/internal/metrics"
	"github.com/hookflow/hookflow/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)
	r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	deps := r.server.deps
	h := handlers.New(deps.Intake, deps.Scenarios, deps.Connections, deps.Runs, deps.Results, deps.Monitor)

	r.mux.HandleFunc("GET /", h.HealthCheck)
	r.mux.HandleFunc("GET /health", h.HealthCheck)
	r.mux.Handle("GET /metrics", metrics.Handler())

	// Webhook intake. The connection-bound variant enforces signature
	// verification with that connection's secret.
	r.mux.HandleFunc("POST /webhooks/{triggerKey}", r.throttled(h.ReceiveWebhook))
	r.mux.HandleFunc("POST /webhooks/{triggerKey}/connections/{connectionID}", r.throttled(h.ReceiveWebhook))

	r.mux.HandleFunc("POST /api/scenarios", h.CreateScenario)
	r.mux.HandleFunc("GET /api/scenarios", h.ListScenarios)
	r.mux.HandleFunc("GET /api/scenarios/{id}", h.GetScenario)
	r.mux.HandleFunc("PATCH /api/scenarios/{id}", h.UpdateScenario)
	r.mux.HandleFunc("PUT /api/scenarios/{id}/nodes", h.SaveScenarioNodes)

	r.mux.HandleFunc("POST /api/connections", h.CreateConnection)
	r.mux.HandleFunc("GET /api/connections", h.ListConnections)
	r.mux.HandleFunc("POST /api/connections/{id}/rotate", h.RotateConnectionSecret)

	r.mux.HandleFunc("GET /api/executions", h.ActiveExecutions)
	r.mux.HandleFunc("GET /api/runs/{id}", h.GetRun)
	r.mux.HandleFunc("GET /api/metrics", h.PerformanceMetrics)
	r.mux.HandleFunc("GET /api/metrics/scenarios/{id}", h.ScenarioMetrics)

	if deps.Hub != nil {
		r.mux.HandleFunc("GET /api/executions/watch", deps.Hub.ServeHTTP)
	}
}

// throttled applies the webhook rate limit when one is configured.
func (r *Router) throttled(fn http.HandlerFunc) http.HandlerFunc {
	if r.server.limiter == nil {
		return fn
	}
	return func(w http.ResponseWriter, req *http.Request) {
		r.server.limiter.Middleware(fn).ServeHTTP(w, req)
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
