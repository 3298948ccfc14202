package server

import (
	"net/http"

	"github.com/watzon/gensched/internal/auth"
	"github.com/watzon/gensched/internal/metrics"
	"github.com/watzon/gensched/internal/server/handlers"
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

	if r.server.cfg.Server.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(r.server.cfg.Server.MaxBodySize))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	health := handlers.NewHealthHandlers(r.server.db, r.server.launcher, r.server.bus, r.server.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.Handle("GET /metrics", metrics.Handler())

	h := handlers.New(r.server.launcher, r.server.store)
	r.mux.HandleFunc("GET /api/stats", r.wrapWithAuth(health.Stats))
	r.mux.HandleFunc("GET /api/tasks", r.wrapWithAuth(h.ListTasks))
	r.mux.HandleFunc("POST /api/tasks", r.wrapWithAuth(h.ApplyTask))
	r.mux.HandleFunc("GET /api/tasks/{id}", r.wrapWithAuth(h.GetTask))
	r.mux.HandleFunc("PATCH /api/tasks/{id}", r.wrapWithAuth(h.PatchTask))
	r.mux.HandleFunc("DELETE /api/tasks/{id}", r.wrapWithAuth(h.DeleteTask))
	r.mux.HandleFunc("POST /api/tasks/{id}/run", r.wrapWithAuth(h.RunTask))
	r.mux.HandleFunc("GET /api/tasks/{id}/history", r.wrapWithAuth(h.TaskHistory))

	if r.server.bus != nil {
		ev := handlers.NewEventsHandler(r.server.bus)
		r.mux.HandleFunc("GET /api/events", r.wrapWithAuth(ev.Stream))
	}
}

// wrapWithAuth requires a token when auth is configured.
func (r *Router) wrapWithAuth(fn handlers.HandlerFunc) http.HandlerFunc {
	if r.server.tokens == nil {
		return http.HandlerFunc(fn)
	}
	return auth.RequireToken(r.server.tokens)(http.HandlerFunc(fn)).ServeHTTP
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
