// Package server provides the HTTP server and handlers.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/bryan-buckman/feedsync/internal/database"
	"github.com/bryan-buckman/feedsync/internal/refresh"
	"github.com/bryan-buckman/feedsync/internal/resource"
)

// Server is the main HTTP server.
type Server struct {
	store     database.Store
	refresher *refresh.Refresher
	poller    *refresh.Poller
	gatherer  prometheus.Gatherer
	handlers  []resource.Handler
	router    chi.Router
	http      *http.Server
}

// New creates a new server. poller may be nil.
func New(store database.Store, refresher *refresh.Refresher, poller *refresh.Poller, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		store:     store,
		refresher: refresher,
		poller:    poller,
		gatherer:  gatherer,
		handlers:  resource.Handlers(store),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	for _, h := range s.handlers {
		mountResource(r, h)
	}

	r.Post("/refresh", s.handleRefresh)
	r.Get("/opml", s.handleExportOPML)
	r.Post("/opml", s.handleImportOPML)
	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router = r
}

// ServeHTTP lets the server be used directly as a handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start starts the poller and serves until Shutdown is called.
func (s *Server) Start(addr string) error {
	if s.poller != nil {
		s.poller.Start()
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithField("addr", addr).Info("Server starting")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones and then
// stops the poller.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	if s.poller != nil {
		s.poller.Stop()
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"database": s.store.DatabaseType(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	// A refresh runs to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	sum, err := s.refresher.Refresh(ctx)
	switch {
	case errors.Is(err, refresh.ErrBusy):
		writeJSON(w, http.StatusOK, map[string]string{"message": "update is currently in progress, please wait."})
	case err != nil:
		log.WithField("request_id", middleware.GetReqID(r.Context())).Errorf("Refresh failed: %+v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "refresh failed"})
	default:
		writeJSON(w, http.StatusOK, sum)
	}
}
