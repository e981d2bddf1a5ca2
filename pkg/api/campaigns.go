package api

import (
	"context"
	"net/http"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/engine"
	"github.com/Tessera-Labs/coffer/pkg/events"
)

// CreateCampaignRequest is the POST /v1/campaigns body.
type CreateCampaignRequest struct {
	CampaignType  string    `json:"campaign_type"`
	AcceptedAsset string    `json:"accepted_asset"`
	TargetAmount  int64     `json:"target_amount"`
	EndTime       time.Time `json:"end_time"`
	MetadataRef   string    `json:"metadata_ref"`
}

// DonationRequest is the POST /v1/campaigns/{id}/donations body.
type DonationRequest struct {
	Amount int64 `json:"amount"`
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req CreateCampaignRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c, err := s.engine.CreateCampaign(r.Context(), caller, engine.CreateParams{
		Type:         campaign.Type(req.CampaignType),
		Asset:        req.AcceptedAsset,
		TargetAmount: req.TargetAmount,
		EndTime:      req.EndTime,
		MetadataRef:  req.MetadataRef,
	})
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleCampaign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	c, err := s.engine.Campaign(r.Context(), id)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCampaignEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	evs := s.engine.Journal().Query(events.Filter{CampaignID: id})
	writeJSON(w, http.StatusOK, map[string]any{
		"campaign_id": id,
		"events":      evs,
	})
}

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	var req DonationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	receipt, err := s.engine.Donate(r.Context(), caller, id, req.Amount)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleClaimRefund(w http.ResponseWriter, r *http.Request) {
	s.lifecycleReceipt(w, r, s.engine.ClaimRefund)
}

func (s *Server) handleFinalizeClosure(w http.ResponseWriter, r *http.Request) {
	s.lifecycleReceipt(w, r, s.engine.FinalizeClosureAndWithdraw)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.lifecycleReceipt(w, r, s.engine.WithdrawFunds)
}

func (s *Server) handleInitiateClosure(w http.ResponseWriter, r *http.Request) {
	s.lifecycleTransition(w, r, s.engine.InitiateClosure)
}

func (s *Server) handleFailCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycleTransition(w, r, s.engine.FailCampaignIfUnsuccessful)
}

func (s *Server) handleCancelCampaign(w http.ResponseWriter, r *http.Request) {
	s.lifecycleTransition(w, r, s.engine.CancelCampaign)
}

func (s *Server) handleExportStatement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	if s.exporter == nil {
		WriteProblem(w, http.StatusServiceUnavailable, "Service Unavailable",
			"Statement export is not configured")
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	receipt, err := s.exporter.ExportStatement(r.Context(), id)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// lifecycleReceipt runs a bodyless money-moving operation for the
// authenticated caller and returns its receipt.
func (s *Server) lifecycleReceipt(w http.ResponseWriter, r *http.Request,
	op func(context.Context, campaign.Principal, uint64) (engine.Receipt, error)) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	receipt, err := op(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// lifecycleTransition runs a bodyless status transition and returns
// the updated campaign record.
func (s *Server) lifecycleTransition(w http.ResponseWriter, r *http.Request,
	op func(context.Context, campaign.Principal, uint64) (campaign.Campaign, error)) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	c, err := op(r.Context(), caller, id)
	if err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
