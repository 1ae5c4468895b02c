package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Services are the handlers' collaborators.
type Services struct {
	Messages     MessageService
	EmailJobs    EmailJobService
	Campaigns    CampaignService
	Reconciler   Reconciler
	Unsubscribe  Unsubscriber
	Inbound      InboundReceiver
	Suppressions SuppressionService
	Health       *HealthChecker
}

// Options tune the router.
type Options struct {
	AllowedOrigins []string
	// MaxUploadBytes bounds multipart attachment uploads.
	MaxUploadBytes int64
	// MediaDir, when set, is served read-only under /media/.
	MediaDir string
}

// Server represents the API server
type Server struct {
	svc    Services
	opts   Options
	router *chi.Mux
	server *http.Server
}

// NewServer creates a new API server
func NewServer(svc Services, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 12 << 20
	}
	s := &Server{svc: svc, opts: opts}
	s.router = s.routes()
	return s
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       time.Minute,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.router
}
