// Package engine implements the campaign lifecycle state machine. Each
// operation validates preconditions in a fixed order, applies the
// commission policy, commits effects to the ledger, instructs the
// transfer gateway, and on success appends a journal event. A refused
// transfer restores the pre-operation records, so an operation either
// settles completely or leaves no trace.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Tessera-Labs/coffer/pkg/admission"
	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/config"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
	"github.com/Tessera-Labs/coffer/pkg/ledger"
	"github.com/Tessera-Labs/coffer/pkg/observability"
)

// ErrReentrant is returned when an operation targets a campaign that
// is already inside another operation. Calls never block on the
// campaign lock; the conflict surfaces immediately.
var ErrReentrant = errors.New("engine: campaign operation already in progress")

// lockTable holds the per-campaign exclusive locks. Acquisition is
// try-only.
type lockTable struct {
	mu   sync.Mutex
	held map[uint64]struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[uint64]struct{})}
}

func (t *lockTable) acquire(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, taken := t.held[id]; taken {
		return false
	}
	t.held[id] = struct{}{}
	return true
}

func (t *lockTable) release(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, id)
}

// Options wires an Engine. Store, Custody and Gateway are required;
// the rest defaults to inert implementations.
type Options struct {
	Store     ledger.Store
	Custody   *config.Custody
	Gateway   gateway.Gateway
	Journal   *events.Journal
	Screen    *admission.Screen
	Telemetry *observability.Provider
	Logger    *slog.Logger
}

// Engine is the custody core. All methods are safe for concurrent use;
// operations on the same campaign are serialized by the lock table.
type Engine struct {
	store   ledger.Store
	custody *config.Custody
	gateway gateway.Gateway
	journal *events.Journal
	screen  *admission.Screen
	obs     *observability.Provider
	logger  *slog.Logger
	locks   *lockTable
	clock   func() time.Time
}

// New validates the wiring and returns a ready engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("engine: ledger store is required")
	}
	if opts.Custody == nil {
		return nil, errors.New("engine: custody configuration is required")
	}
	if opts.Gateway == nil {
		return nil, errors.New("engine: transfer gateway is required")
	}
	journal := opts.Journal
	if journal == nil {
		journal = events.NewJournal()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   opts.Store,
		custody: opts.Custody,
		gateway: opts.Gateway,
		journal: journal,
		screen:  opts.Screen,
		obs:     opts.Telemetry,
		logger:  logger.With("component", "engine"),
		locks:   newLockTable(),
		clock:   time.Now,
	}, nil
}

// WithClock overrides the time source, for tests and the demo.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Journal exposes the event journal for read surfaces and publishers.
func (e *Engine) Journal() *events.Journal {
	return e.journal
}

// Custody exposes the runtime configuration for admin surfaces.
func (e *Engine) Custody() *config.Custody {
	return e.custody
}

// Campaign returns the stored record for id.
func (e *Engine) Campaign(ctx context.Context, id uint64) (campaign.Campaign, error) {
	return e.store.Campaign(ctx, id)
}

// DonorRecord returns a donor's position in a campaign. Donors that
// never contributed yield the zero record.
func (e *Engine) DonorRecord(ctx context.Context, id uint64, donor campaign.Principal) (campaign.DonorRecord, error) {
	return e.store.DonorRecord(ctx, id, donor)
}

// Receipt reports the money movement of one settled operation.
type Receipt struct {
	Campaign   campaign.Campaign `json:"campaign"`
	Gross      int64             `json:"gross"`
	Commission int64             `json:"commission"`
	Net        int64             `json:"net"`
}

// lock takes the campaign's exclusive lock or fails fast.
func (e *Engine) lock(id uint64) error {
	if !e.locks.acquire(id) {
		return fmt.Errorf("%w: campaign %d", ErrReentrant, id)
	}
	return nil
}

// loadOrZero reads a campaign, mapping an unallocated id to the zero
// record. The zero record fails the status and creator checks exactly
// the way a nonexistent campaign must.
func (e *Engine) loadOrZero(ctx context.Context, id uint64) (campaign.Campaign, error) {
	c, err := e.store.Campaign(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return campaign.Campaign{}, nil
	}
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("engine: load campaign: %w", err)
	}
	return c, nil
}

// settle executes the interaction batch. A refusal rolls the written
// records back via restore and maps to the typed transfer errors.
func (e *Engine) settle(ctx context.Context, batch gateway.Batch, restore func(context.Context) error) error {
	if len(batch.Instructions) == 0 {
		return nil
	}
	err := e.gateway.Execute(ctx, batch)
	if err == nil {
		return nil
	}
	if rerr := restore(ctx); rerr != nil {
		e.logger.ErrorContext(ctx, "rollback after transfer failure failed",
			"campaign_id", batch.CampaignID, "error", rerr)
	}
	if errors.Is(err, gateway.ErrInsufficientAuthorization) {
		return fmt.Errorf("%w: %v", campaign.ErrInsufficientAuthorization, err)
	}
	return fmt.Errorf("%w: %v", campaign.ErrTransferFailed, err)
}

// emit appends the operation's event. Append failures are logged, not
// surfaced: the operation itself has already settled.
func (e *Engine) emit(ctx context.Context, kind events.Kind, campaignID uint64, at time.Time, payload any) {
	if _, err := e.journal.Append(kind, campaignID, at, payload); err != nil {
		e.logger.ErrorContext(ctx, "event append failed",
			"kind", kind, "campaign_id", campaignID, "error", err)
	}
}

// track opens the operation span when telemetry is wired.
func (e *Engine) track(ctx context.Context, op string, campaignID uint64, principal campaign.Principal) (context.Context, func(error)) {
	if e.obs == nil {
		return ctx, func(error) {}
	}
	return e.obs.TrackOperation(ctx, "engine."+op,
		observability.Operation(op, campaignID, string(principal))...)
}

// annotate attaches the settled amounts to the operation span.
func (e *Engine) annotate(ctx context.Context, gross, commission int64) {
	if e.obs == nil {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(observability.Movement(nil, gross, commission)...)
}

// admit runs the admission screen when one is configured.
func (e *Engine) admit(creator campaign.Principal, p CreateParams, now time.Time) error {
	if e.screen == nil {
		return nil
	}
	return e.screen.Admit(admission.Request{
		Creator:      creator,
		CampaignType: p.Type,
		Asset:        p.Asset,
		TargetAmount: p.TargetAmount,
		EndTime:      p.EndTime,
		MetadataRef:  p.MetadataRef,
		Now:          now,
	})
}
