package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/service/dispatch"
)

//	POST /api/messages
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req dispatch.CreateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	msg, err := s.svc.Messages.Create(r.Context(), OrgID(r.Context()), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.Created(w, msg)
}

//	GET /api/messages/{id}
func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Messages.Get(r.Context(), OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, msg)
}

// handleRetryMessage re-queues a FAILED message.
//
//	POST /api/messages/{id}/retry
func (s *Server) handleRetryMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.svc.Messages.Retry(r.Context(), OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, msg)
}
