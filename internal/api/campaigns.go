package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jadidihosein68/osaconnect/internal/pkg/httputil"
	"github.com/jadidihosein68/osaconnect/internal/service/campaign"
)

//	GET /api/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Campaigns.Get(r.Context(), OrgID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.OK(w, c)
}

// handleLaunchCampaign starts sending a draft campaign to the listed
// contacts.
//
//	POST /api/campaigns/{id}/launch
func (s *Server) handleLaunchCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.LaunchInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	res, err := s.svc.Campaigns.Launch(r.Context(), OrgID(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	httputil.JSON(w, http.StatusAccepted, res)
}
