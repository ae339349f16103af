// Package server exposes the thumbnailer session over HTTP with a small web
// UI and live progress over websocket.
package server

import (
	"context"
	"errors"
	"io/fs"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer/internal/config"
	"github.com/root4loot/thumbnailer/internal/metrics"
	"github.com/root4loot/thumbnailer/internal/session"
)

type Server struct {
	cfg            config.ServerConfig
	defaults       config.BatchConfig
	maxUploadBytes int64
	session        *session.Session
	hub            *Hub
	metrics        *metrics.Metrics
	registry       *prometheus.Registry
	upgrader       websocket.Upgrader

	// batches outlive the request that started them
	baseCtx context.Context
}

func New(cfg *config.Config, sess *session.Session, m *metrics.Metrics, registry *prometheus.Registry) *Server {
	s := &Server{
		cfg:            cfg.Server,
		defaults:       cfg.Batch,
		maxUploadBytes: cfg.Server.MaxUploadBytes,
		session:        sess,
		hub:            NewHub(),
		metrics:        m,
		registry:       registry,
		baseCtx:        context.Background(),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}

	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic("failed to initialize embedded static assets: " + err.Error())
	}
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServerFS(staticFS)))

	mux.HandleFunc("/", s.index)
	mux.HandleFunc("/healthz", s.healthz)
	mux.HandleFunc("/ws", s.websocket)

	mux.HandleFunc("/api/v1/preview", s.preview)
	mux.HandleFunc("/api/v1/batches", s.createBatch)
	mux.HandleFunc("/api/v1/session", s.sessionState)
	mux.HandleFunc("/api/v1/archive", s.archive)
	mux.HandleFunc("/api/v1/manifest", s.manifest)
	mux.HandleFunc("/api/v1/reset", s.reset)

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = s.metrics.Middleware(handler)
	}
	handler = Logger(handler)
	handler = Recovery(handler)

	return handler
}

// Run serves until ctx ends, then shuts the listener down and interrupts any
// running batch.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	unsubscribe := s.session.Subscribe(s.hub.Broadcast)
	defer unsubscribe()

	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on http://%s", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	s.session.Cancel()
	s.session.Wait()

	return err
}

// checkOrigin accepts same-host browser origins and non-browser clients.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originHost(origin) == r.Host
}
