package config

import (
	"errors"
	"sync"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/commission"
)

// DefaultReclaimPeriod bounds the refund window opened by a closure or
// failure when no other period is configured.
const DefaultReclaimPeriod = 14 * 24 * time.Hour

var (
	// ErrNotOwner gates every mutating setter.
	ErrNotOwner = errors.New("config: caller is not the custody owner")
	// ErrEmptyPrincipal rejects blank owner or sink principals.
	ErrEmptyPrincipal = errors.New("config: principal must not be empty")
	// ErrInvalidPeriod rejects non-positive reclaim periods.
	ErrInvalidPeriod = errors.New("config: reclaim period must be positive")
)

// Params seeds a Custody instance.
type Params struct {
	Owner         campaign.Principal
	Sink          campaign.Principal
	DonationRates map[campaign.Type]commission.Rate
	RefundRate    commission.Rate
	SuccessRates  map[campaign.Type]commission.Rate
	Assets        []string
	ReclaimPeriod time.Duration

	// RepeatRefundCycles clears a donor's reclaim latch on a fresh
	// donation, allowing donate/refund cycles.
	RepeatRefundCycles bool
	// RefundFromCompleted lets donors refund out of a Completed
	// campaign, demoting it to Active when it drops below target.
	RefundFromCompleted bool
	// FailedSweep lets the creator close a Failed campaign and sweep
	// the unclaimed remainder once the reclaim window has passed.
	FailedSweep bool
}

// DefaultParams returns the reference settings: zero rates for both
// campaign types, 14-day reclaim window, one-shot reclaim latch,
// failed sweep enabled.
func DefaultParams() Params {
	return Params{
		DonationRates: map[campaign.Type]commission.Rate{
			campaign.TypeStartup: 0,
			campaign.TypeCharity: 0,
		},
		SuccessRates: map[campaign.Type]commission.Rate{
			campaign.TypeStartup: 0,
			campaign.TypeCharity: 0,
		},
		ReclaimPeriod: DefaultReclaimPeriod,
		FailedSweep:   true,
	}
}

// Custody is the owner-mutable configuration the lifecycle engine
// reads. All reads go through Snapshot; all writes go through
// owner-gated setters. A zero-length whitelist admits every asset.
type Custody struct {
	mu                  sync.RWMutex
	owner               campaign.Principal
	sink                campaign.Principal
	donationRates       map[campaign.Type]commission.Rate
	refundRate          commission.Rate
	successRates        map[campaign.Type]commission.Rate
	assets              map[string]struct{}
	reclaimPeriod       time.Duration
	repeatRefundCycles  bool
	refundFromCompleted bool
	failedSweep         bool
	paused              bool
}

// NewCustody validates the seed parameters and returns the live
// configuration. An unset sink is permitted here; operations that need
// one reject with NoCommissionSink at call time.
func NewCustody(p Params) (*Custody, error) {
	if p.Owner.IsZero() {
		return nil, ErrEmptyPrincipal
	}
	if _, err := commission.NewPolicy(p.DonationRates, p.RefundRate, p.SuccessRates); err != nil {
		return nil, err
	}
	period := p.ReclaimPeriod
	if period == 0 {
		period = DefaultReclaimPeriod
	}
	if period < 0 {
		return nil, ErrInvalidPeriod
	}
	c := &Custody{
		owner:               p.Owner,
		sink:                p.Sink,
		donationRates:       make(map[campaign.Type]commission.Rate, len(p.DonationRates)),
		refundRate:          p.RefundRate,
		successRates:        make(map[campaign.Type]commission.Rate, len(p.SuccessRates)),
		assets:              make(map[string]struct{}, len(p.Assets)),
		reclaimPeriod:       period,
		repeatRefundCycles:  p.RepeatRefundCycles,
		refundFromCompleted: p.RefundFromCompleted,
		failedSweep:         p.FailedSweep,
	}
	for t, r := range p.DonationRates {
		c.donationRates[t] = r
	}
	for t, r := range p.SuccessRates {
		c.successRates[t] = r
	}
	for _, a := range p.Assets {
		c.assets[a] = struct{}{}
	}
	return c, nil
}

// Snapshot is one operation's immutable view of the configuration.
type Snapshot struct {
	Sink                campaign.Principal
	Policy              commission.Policy
	ReclaimPeriod       time.Duration
	RepeatRefundCycles  bool
	RefundFromCompleted bool
	FailedSweep         bool
	Paused              bool

	assets map[string]struct{}
}

// AssetAllowed reports whether the whitelist admits the asset. An
// empty whitelist admits everything.
func (s Snapshot) AssetAllowed(code string) bool {
	if len(s.assets) == 0 {
		return true
	}
	_, ok := s.assets[code]
	return ok
}

// Snapshot captures the configuration in force for one operation.
func (c *Custody) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	// Setters keep the tables valid, so the policy cannot fail here.
	policy, _ := commission.NewPolicy(c.donationRates, c.refundRate, c.successRates)
	assets := make(map[string]struct{}, len(c.assets))
	for a := range c.assets {
		assets[a] = struct{}{}
	}
	return Snapshot{
		Sink:                c.sink,
		Policy:              policy,
		ReclaimPeriod:       c.reclaimPeriod,
		RepeatRefundCycles:  c.repeatRefundCycles,
		RefundFromCompleted: c.refundFromCompleted,
		FailedSweep:         c.failedSweep,
		Paused:              c.paused,
		assets:              assets,
	}
}

// Owner returns the custody owner principal.
func (c *Custody) Owner() campaign.Principal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.owner
}

func (c *Custody) gate(caller campaign.Principal) error {
	if caller != c.owner {
		return ErrNotOwner
	}
	return nil
}

// SetDonationRate sets the donation commission for one campaign type.
func (c *Custody) SetDonationRate(caller campaign.Principal, t campaign.Type, r commission.Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	if !t.Valid() {
		return commission.ErrUnknownType
	}
	if !r.Valid() {
		return commission.ErrInvalidRate
	}
	c.donationRates[t] = r
	return nil
}

// SetRefundRate sets the single refund commission rate.
func (c *Custody) SetRefundRate(caller campaign.Principal, r commission.Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	if !r.Valid() {
		return commission.ErrInvalidRate
	}
	c.refundRate = r
	return nil
}

// SetSuccessRate sets the success commission for one campaign type.
func (c *Custody) SetSuccessRate(caller campaign.Principal, t campaign.Type, r commission.Rate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	if !t.Valid() {
		return commission.ErrUnknownType
	}
	if !r.Valid() {
		return commission.ErrInvalidRate
	}
	c.successRates[t] = r
	return nil
}

// SetSink points commissions at a new sink principal.
func (c *Custody) SetSink(caller, sink campaign.Principal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	if sink.IsZero() {
		return ErrEmptyPrincipal
	}
	c.sink = sink
	return nil
}

// SetReclaimPeriod changes the refund window length for future
// closures and failures. Windows already opened keep their deadline.
func (c *Custody) SetReclaimPeriod(caller campaign.Principal, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	if d <= 0 {
		return ErrInvalidPeriod
	}
	c.reclaimPeriod = d
	return nil
}

// AllowAsset adds an asset code to the whitelist.
func (c *Custody) AllowAsset(caller campaign.Principal, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	c.assets[code] = struct{}{}
	return nil
}

// RevokeAsset removes an asset code from the whitelist.
func (c *Custody) RevokeAsset(caller campaign.Principal, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	delete(c.assets, code)
	return nil
}

// SetPaused flips the custody-wide pause switch.
func (c *Custody) SetPaused(caller campaign.Principal, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.gate(caller); err != nil {
		return err
	}
	c.paused = paused
	return nil
}

// RateView is the reporting shape of the rate tables.
type RateView struct {
	Donation map[campaign.Type]commission.Rate `json:"donation"`
	Refund   commission.Rate                   `json:"refund"`
	Success  map[campaign.Type]commission.Rate `json:"success"`
}

// Rates returns a copy of the rate tables for reporting surfaces.
func (c *Custody) Rates() RateView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v := RateView{
		Donation: make(map[campaign.Type]commission.Rate, len(c.donationRates)),
		Refund:   c.refundRate,
		Success:  make(map[campaign.Type]commission.Rate, len(c.successRates)),
	}
	for t, r := range c.donationRates {
		v.Donation[t] = r
	}
	for t, r := range c.successRates {
		v.Success[t] = r
	}
	return v
}
