package api

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/service/reconcile"
)

// maxEventsBody bounds one email events delivery.
const maxEventsBody = 10 << 20

// handleProviderCallback applies a generic delivery callback.
//
//	POST /callbacks/{channel}
//
// An optional X-Organization-ID header scopes the message lookup.
// 400 when message_id or status is missing, 202 when the report was
// accepted but not applied, 200 otherwise.
func (s *Server) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
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

	cb := reconcile.ParseCallback(payload)
	cb.OrganizationID = orgID
	res, err := s.svc.Reconciler.ApplyCallback(r.Context(), ch, cb)
	switch {
	case errors.Is(err, reconcile.ErrInvalidPayload):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	if res.Outcome == reconcile.OutcomeIgnored {
		httputil.Accepted(w, res)
		return
	}
	httputil.OK(w, res)
}

// handleEmailEvents applies an email provider's event webhook. Providers
// retry on anything but 2xx, so malformed deliveries are logged and
// acknowledged.
//
//	POST /callbacks/email-events
func (s *Server) handleEmailEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventsBody))
	if err != nil {
		log.Printf("[EmailEvents] body read failed: %v", err)
		httputil.OK(w, map[string]string{"status": "no events"})
		return
	}
	events, err := reconcile.ParseEmailEvents(body)
	if err != nil {
		log.Printf("[EmailEvents] unparseable delivery (%d bytes): %v", len(body), err)
	}
	if len(events) == 0 {
		httputil.OK(w, map[string]string{"status": "no events"})
		return
	}
	httputil.OK(w, s.svc.Reconciler.ApplyEmailEvents(r.Context(), events))
}
