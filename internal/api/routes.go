package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.svc.Health != nil {
		r.Get("/health", s.svc.Health.HandleHealth)
		r.Get("/health/live", s.svc.Health.HandleLiveness)
		r.Get("/health/ready", s.svc.Health.HandleReadiness)
	} else {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	}

	// Provider-facing and recipient-facing routes carry no tenant header.
	r.Post("/callbacks/email-events", s.handleEmailEvents)
	r.Post("/callbacks/{channel}", s.handleProviderCallback)
	r.Post("/webhooks/{channel}", s.handleInboundWebhook)
	r.Get("/unsubscribe", s.handleUnsubscribePage)
	r.Post("/unsubscribe", s.handleOneClickUnsubscribe)

	if s.opts.MediaDir != "" {
		r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(s.opts.MediaDir))))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireOrg)

		r.Post("/messages", s.handleCreateMessage)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Post("/messages/{id}/retry", s.handleRetryMessage)

		r.Post("/email-jobs", s.handleCreateEmailJob)
		r.Get("/email-jobs/{id}", s.handleGetEmailJob)
		r.Post("/email-jobs/{id}/retry-failed", s.handleRetryEmailJob)
		r.Post("/email-jobs/attachments", s.handleUploadAttachment)

		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/launch", s.handleLaunchCampaign)

		r.Get("/suppressions", s.handleListSuppressions)
		r.Get("/suppressions/stats", s.handleSuppressionStats)
		r.Post("/suppressions", s.handleAddSuppression)
		r.Delete("/suppressions/{channel}/{identifier}", s.handleRemoveSuppression)
	})

	return r
}
