package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/admission"
	"github.com/Tessera-Labs/coffer/pkg/api"
	"github.com/Tessera-Labs/coffer/pkg/archive"
	"github.com/Tessera-Labs/coffer/pkg/auth"
	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/config"
	"github.com/Tessera-Labs/coffer/pkg/engine"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
	"github.com/Tessera-Labs/coffer/pkg/guard"
	"github.com/Tessera-Labs/coffer/pkg/ledger"
	"github.com/Tessera-Labs/coffer/pkg/observability"
)

// defaultGuardLimits throttles money-moving routes per principal.
var defaultGuardLimits = guard.Limits{PerSecond: 5, Burst: 10}

func runServe(stdout, stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		logger.Error("COFFER_JWT_SECRET is required for serve")
		return 2
	}
	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret))
	if err != nil {
		logger.Error("auth setup failed", "error", err)
		return 2
	}

	store, err := ledger.OpenFromEnv(ctx)
	if err != nil {
		logger.Error("ledger setup failed", "error", err)
		return 1
	}
	defer store.Close()

	profile, err := config.LoadProfile(cfg.ProfileDir, cfg.ProfileCode)
	if err != nil {
		logger.Error("profile load failed", "error", err)
		return 1
	}
	params, err := profile.Params(campaign.Principal(cfg.Owner))
	if err != nil {
		logger.Error("profile rejected", "error", err)
		return 1
	}
	custody, err := config.NewCustody(params)
	if err != nil {
		logger.Error("custody setup failed", "error", err)
		return 1
	}
	logger.Info("profile loaded", "code", profile.Code, "description", profile.Description)

	var screen *admission.Screen
	if len(profile.Admission) > 0 {
		screen, err = admission.NewScreen(profile.Admission)
		if err != nil {
			logger.Error("admission rules rejected", "error", err)
			return 1
		}
		logger.Info("admission screen active", "rules", len(profile.Admission))
	}

	journal := events.NewJournal()
	if cfg.NATSURL != "" {
		publisher, err := events.NewNATSPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("nats setup failed", "error", err)
			return 1
		}
		defer publisher.Close()
		journal.AddHandler(publisher.Handler())
		logger.Info("event publisher connected", "url", cfg.NATSURL)
	}

	obsConfig := observability.DefaultConfig()
	obsConfig.ServiceVersion = version
	obsConfig.OTLPEndpoint = cfg.OTLPEndpoint
	obsConfig.Enabled = cfg.OTLPEndpoint != ""
	obs, err := observability.New(ctx, obsConfig)
	if err != nil {
		logger.Error("telemetry setup failed", "error", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	// Settlement adapters are deployment-specific; the in-process
	// recorder authorizes every instruction and keeps them auditable.
	eng, err := engine.New(engine.Options{
		Store:     store,
		Custody:   custody,
		Gateway:   gateway.NewRecorder(),
		Journal:   journal,
		Screen:    screen,
		Telemetry: obs,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("engine setup failed", "error", err)
		return 1
	}

	exporter, err := buildExporter(ctx, journal, logger)
	if err != nil {
		logger.Error("statement exporter setup failed", "error", err)
		return 1
	}

	var g guard.Guard
	if cfg.RedisAddr != "" {
		g = guard.NewRedisGuard(cfg.RedisAddr, os.Getenv("COFFER_REDIS_PASSWORD"), 0, defaultGuardLimits)
		logger.Info("guard backed by redis", "addr", cfg.RedisAddr)
	} else {
		g = guard.NewMemoryGuard(defaultGuardLimits)
	}

	idem, closeIdem, err := buildIdempotency(ctx, logger)
	if err != nil {
		logger.Error("idempotency store setup failed", "error", err)
		return 1
	}
	if closeIdem != nil {
		defer func() { _ = closeIdem() }()
	}

	server := api.NewServer(api.Options{
		Engine:      eng,
		Verifier:    verifier,
		Guard:       g,
		Exporter:    exporter,
		Idempotency: idem,
		Version:     version,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.ListenAndServe() }()
	logger.Info("coffer ready", "addr", cfg.ListenAddr, "version", version)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			return 1
		}
		return 0
	}
}

// buildIdempotency shares the ledger's database for replay storage when
// the postgres backend is configured, so repeated keys survive restarts
// and replicas agree on replays. Every other backend keeps the
// process-local default.
func buildIdempotency(ctx context.Context, logger *slog.Logger) (api.IdempotencyStore, func() error, error) {
	if os.Getenv("COFFER_LEDGER_BACKEND") != "postgres" {
		return nil, nil, nil
	}
	dsn := os.Getenv("COFFER_POSTGRES_DSN")
	if dsn == "" {
		return nil, nil, fmt.Errorf("COFFER_POSTGRES_DSN is required for the postgres backend")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	idem := api.NewPostgresIdempotencyStore(db, 24*time.Hour, logger)
	if err := idem.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	logger.Info("idempotency store backed by postgres")
	return idem, db.Close, nil
}

// buildExporter assembles the statement pipeline. The signing key
// comes from COFFER_STATEMENT_SEED (64 hex chars); without one the
// packs are signed with an ephemeral key that dies with the process.
func buildExporter(ctx context.Context, journal *events.Journal, logger *slog.Logger) (*events.Exporter, error) {
	packs, err := archive.OpenFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	var root *events.MemoryKeyProvider
	if seedHex := os.Getenv("COFFER_STATEMENT_SEED"); seedHex != "" {
		seed, err := hex.DecodeString(seedHex)
		if err != nil {
			return nil, fmt.Errorf("decode COFFER_STATEMENT_SEED: %w", err)
		}
		root, err = events.NewMemoryKeyProviderFromSeed(seed)
		if err != nil {
			return nil, err
		}
	} else {
		root, err = events.NewMemoryKeyProvider()
		if err != nil {
			return nil, err
		}
		logger.Warn("COFFER_STATEMENT_SEED not set; statement packs are signed with an ephemeral key")
	}
	return events.NewExporter(journal, root, packs), nil
}

// newLogger builds the process logger: JSON at the service edge,
// level from LOG_LEVEL.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
