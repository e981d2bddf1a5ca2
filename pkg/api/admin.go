package api

import (
	"net/http"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/commission"
)

// RatesUpdateRequest is the PUT /v1/rates body. Absent maps leave the
// corresponding table untouched; a nil refund leaves the refund rate.
type RatesUpdateRequest struct {
	Donation map[string]commission.Rate `json:"donation,omitempty"`
	Refund   *commission.Rate           `json:"refund,omitempty"`
	Success  map[string]commission.Rate `json:"success,omitempty"`
}

// PauseRequest is the PUT /v1/pause body.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.Custody().Rates())
	case http.MethodPut:
		s.updateRates(w, r)
	default:
		WriteMethodNotAllowed(w)
	}
}

// updateRates applies a partial rate-table update. Every setter is
// owner-gated; the first failure stops the update.
func (s *Server) updateRates(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req RatesUpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	custody := s.engine.Custody()
	for t, rate := range req.Donation {
		if err := custody.SetDonationRate(caller, campaign.Type(t), rate); err != nil {
			writeEngineError(w, s.logger, err)
			return
		}
	}
	if req.Refund != nil {
		if err := custody.SetRefundRate(caller, *req.Refund); err != nil {
			writeEngineError(w, s.logger, err)
			return
		}
	}
	for t, rate := range req.Success {
		if err := custody.SetSuccessRate(caller, campaign.Type(t), rate); err != nil {
			writeEngineError(w, s.logger, err)
			return
		}
	}

	s.logger.Info("rates updated", "caller", caller)
	writeJSON(w, http.StatusOK, custody.Rates())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		WriteMethodNotAllowed(w)
		return
	}
	caller, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req PauseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.Custody().SetPaused(caller, req.Paused); err != nil {
		writeEngineError(w, s.logger, err)
		return
	}
	s.logger.Info("pause switched", "caller", caller, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}
