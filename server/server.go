// Package server exposes Traceline's REST surface over a stdlib
// ServeMux with method and wildcard route patterns.
package server

import (
	"log/slog"
	"net/http"

	"github.com/c360studio/traceline/metrics"
	"github.com/c360studio/traceline/resource"
	"github.com/c360studio/traceline/scheduler"
	"github.com/c360studio/traceline/signature"
	"github.com/c360studio/traceline/sprint"
	"github.com/c360studio/traceline/workitem"
)

// apiPrefix is the version prefix all handler groups mount under.
const apiPrefix = "/v1"

// Services collects the backends the HTTP layer fronts.
type Services struct {
	WorkItems  *workitem.Store
	Signatures *signature.Service
	Sprints    *sprint.Coordinator
	Solver     *scheduler.Solver
	Schedules  *scheduler.Store
	Resources  *resource.Service
}

// Server is the assembled HTTP surface.
type Server struct {
	handler http.Handler
}

// Option configures a Server.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the access-log logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New assembles the route table and middleware chain.
func New(svc Services, opts ...Option) *Server {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	mux := http.NewServeMux()

	NewWorkItemAPI(svc.WorkItems).RegisterHTTPHandlers(apiPrefix, mux)
	NewSignatureAPI(svc.Signatures, svc.WorkItems).RegisterHTTPHandlers(apiPrefix, mux)
	NewSprintAPI(svc.Sprints).RegisterHTTPHandlers(apiPrefix, mux)
	NewScheduleAPI(svc.Solver, svc.Schedules).RegisterHTTPHandlers(apiPrefix, mux)
	NewResourceAPI(svc.Resources, svc.WorkItems).RegisterHTTPHandlers(apiPrefix, mux)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return &Server{
		handler: withRequestID(withObservability(o.logger, mux)),
	}
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}
