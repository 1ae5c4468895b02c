package api

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/jadidihosein68/osaconnect/internal/domain"
	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/service/suppression"
)

//	GET /api/suppressions?channel=&reason=&source=&search=&page=&limit=
func (s *Server) handleListSuppressions(w http.ResponseWriter, r *http.Request) {
	p := ParsePagination(r, 50, 500)
	q := r.URL.Query()
	items, total, err := s.svc.Suppressions.List(r.Context(), OrgID(r.Context()), suppression.ListFilter{
		Channel: q.Get("channel"),
		Reason:  q.Get("reason"),
		Source:  q.Get("source"),
		Search:  q.Get("search"),
		Limit:   p.Limit,
		Offset:  p.Offset,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if items == nil {
		items = []domain.Suppression{}
	}
	httputil.OK(w, NewPaginatedResponse(items, p, total))
}

//	GET /api/suppressions/stats
func (s *Server) handleSuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Suppressions.GetStats(r.Context(), OrgID(r.Context()))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, stats)
}

type addSuppressionRequest struct {
	Channel    string `json:"channel"`
	Identifier string `json:"identifier"`
	Reason     string `json:"reason"`
}

// handleAddSuppression adds a manual entry. 201 when new, 200 when the
// identifier was already suppressed.
//
//	POST /api/suppressions
func (s *Server) handleAddSuppression(w http.ResponseWriter, r *http.Request) {
	var req addSuppressionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	ch, err := domain.ParseChannel(req.Channel)
	if err != nil {
		httputil.Validation(w, "channel", err.Error())
		return
	}
	reason := domain.SuppressionReason(req.Reason)
	if reason == "" {
		reason = domain.ReasonManual
	}

	created, err := s.svc.Suppressions.Suppress(r.Context(), OrgID(r.Context()), ch, req.Identifier, reason, domain.SourceManual)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	body := map[string]any{"channel": ch, "identifier": domain.NormalizeIdentifier(ch, req.Identifier), "created": created}
	if created {
		httputil.Created(w, body)
		return
	}
	httputil.OK(w, body)
}

//	DELETE /api/suppressions/{channel}/{identifier}
func (s *Server) handleRemoveSuppression(w http.ResponseWriter, r *http.Request) {
	ch, err := domain.ParseChannel(chi.URLParam(r, "channel"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	identifier, err := url.PathUnescape(chi.URLParam(r, "identifier"))
	if err != nil {
		httputil.BadRequest(w, "invalid identifier")
		return
	}
	if err := s.svc.Suppressions.Remove(r.Context(), OrgID(r.Context()), ch, identifier); err != nil {
		respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
