package rpc

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"fundchain/core"
	"fundchain/crypto"
	"fundchain/native/crowdfund"
)

func pathCampaignID(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	id, err := crowdfund.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_campaign_id", err.Error())
		return [32]byte{}, false
	}
	return id, true
}

func parseAddressParam(w http.ResponseWriter, field, raw string) ([20]byte, bool) {
	addr, err := crypto.ParseFundAddress(strings.TrimSpace(raw))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_address", field+": "+err.Error())
		return [20]byte{}, false
	}
	return addr, true
}

func callerOrReject(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", errMissingToken.Error())
	}
	return caller, ok
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	var req CreateCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	goal, err := parseAmount("goal", req.Goal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_goal", err.Error())
		return
	}
	campaign, err := s.node.CreateCampaign(caller, crowdfund.CreateParams{
		Title:        req.Title,
		Description:  req.Description,
		OrgName:      req.OrgName,
		ProjectLink:  req.ProjectLink,
		ProjectImage: req.ProjectImage,
		Goal:         goal,
		StartAt:      req.StartAt,
		EndAt:        req.EndAt,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaignResponse(campaign))
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	var filter core.CampaignFilter
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("status")); raw != "" {
		status, err := crowdfund.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(query.Get("authority")); raw != "" {
		authority, ok := parseAddressParam(w, "authority", raw)
		if !ok {
			return
		}
		filter.Authority = &authority
	}
	campaigns, err := s.node.Campaigns(filter)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, campaignResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	campaign, err := s.node.Campaign(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignResponse(campaign))
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	var req UpdateMetadataRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	campaign, err := s.node.UpdateCampaignMetadata(id, caller, req.update())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignResponse(campaign))
}

// respondCampaign writes the current record after a state change that returns
// nothing itself.
func (s *Server) respondCampaign(w http.ResponseWriter, id [32]byte, opErr error) {
	if opErr != nil {
		s.writeDomainError(w, opErr)
		return
	}
	campaign, err := s.node.Campaign(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, campaignResponse(campaign))
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	s.respondCampaign(w, id, s.node.CancelCampaign(id, caller))
}

func (s *Server) handleExtendCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	var req ExtendCampaignRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s.respondCampaign(w, id, s.node.ExtendCampaign(id, caller, req.EndAt))
}

func (s *Server) handleCloseCampaign(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	s.respondCampaign(w, id, s.node.CloseCampaign(id, caller))
}
