package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/auth"
	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/engine"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/guard"
)

const maxBodyBytes = 1 << 20 // 1MB request body cap

// Options wires a Server. Engine is required. A nil Verifier fails
// every authenticated route closed; a nil Guard disables throttling;
// a nil Exporter disables statement export; a nil Idempotency store
// falls back to a process-local one.
type Options struct {
	Engine      *engine.Engine
	Verifier    *auth.Verifier
	Guard       guard.Guard
	Exporter    *events.Exporter
	Idempotency IdempotencyStore
	Version     string
	Logger      *slog.Logger
}

// Server is the HTTP face of the custody engine.
type Server struct {
	engine      *engine.Engine
	verifier    *auth.Verifier
	guard       guard.Guard
	exporter    *events.Exporter
	idempotency IdempotencyStore
	version     string
	logger      *slog.Logger
}

// NewServer assembles the handler set.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	idem := opts.Idempotency
	if idem == nil {
		idem = NewIdempotencyStore(24 * time.Hour)
	}
	return &Server{
		engine:      opts.Engine,
		verifier:    opts.Verifier,
		guard:       opts.Guard,
		exporter:    opts.Exporter,
		idempotency: idem,
		version:     version,
		logger:      logger.With("component", "api"),
	}
}

// Routes builds the full route table. Money-moving routes sit behind
// the guard; everything except the health probes sits behind auth.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleHealth)
	mux.HandleFunc("/version", s.handleVersion)

	mux.HandleFunc("/v1/campaigns", s.handleCampaigns)
	mux.HandleFunc("/v1/campaigns/{id}", s.handleCampaign)
	mux.HandleFunc("/v1/campaigns/{id}/events", s.handleCampaignEvents)
	mux.HandleFunc("/v1/campaigns/{id}/closure", s.handleInitiateClosure)
	mux.HandleFunc("/v1/campaigns/{id}/fail", s.handleFailCampaign)
	mux.HandleFunc("/v1/campaigns/{id}/cancel", s.handleCancelCampaign)
	mux.HandleFunc("/v1/campaigns/{id}/statements", s.handleExportStatement)

	mux.Handle("/v1/campaigns/{id}/donations", s.guarded(s.handleDonate))
	mux.Handle("/v1/campaigns/{id}/refunds", s.guarded(s.handleClaimRefund))
	mux.Handle("/v1/campaigns/{id}/closure/finalize", s.guarded(s.handleFinalizeClosure))
	mux.Handle("/v1/campaigns/{id}/withdrawal", s.guarded(s.handleWithdraw))

	mux.HandleFunc("/v1/rates", s.handleRates)
	mux.HandleFunc("/v1/pause", s.handlePause)

	idem := IdempotencyMiddleware(s.idempotency)
	return auth.Middleware(s.verifier)(idem(mux))
}

// guarded throttles a handler per authenticated principal.
func (s *Server) guarded(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.guard != nil {
			p, _ := auth.PrincipalFrom(r.Context())
			if err := s.guard.Allow(r.Context(), string(p)); err != nil {
				WriteTooManyRequests(w, 5)
				return
			}
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "coffer",
		"version": s.version,
	})
}

// principal pulls the authenticated caller, failing the request when
// the auth layer left none.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (campaign.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		WriteUnauthorized(w, "")
		return "", false
	}
	return p, true
}

// campaignID parses the {id} path segment.
func campaignID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		WriteBadRequest(w, "Campaign id must be a positive integer")
		return 0, false
	}
	return id, true
}

// decodeBody reads a bounded JSON request body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
