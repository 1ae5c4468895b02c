package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
)

// handleInboundWebhook logs an inbound message from a provider.
//
//	POST /webhooks/{channel}
//
// The tenant is taken from X-Organization-ID when the provider is
// configured to send it; otherwise the contact is matched across tenants.
func (s *Server) handleInboundWebhook(w http.ResponseWriter, r *http.Request) {
	ch, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	orgID := strings.TrimSpace(r.Header.Get(OrgHeader))
	if orgID != "" {
		if _, err := uuid.Parse(orgID); err != nil {
			httputil.BadRequest(w, OrgHeader+" must be a UUID")
			return
		}
	}
	var payload map[string]any
	if !httputil.Decode(w, r, &payload) {
		return
	}

	res, err := s.svc.Inbound.Receive(r.Context(), orgID, ch, payload)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, res)
}
