package engine

import (
	"context"
	"fmt"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
)

// InitiateClosure moves an Active campaign to Closing and opens the
// reclaim window. Donors may pull their contributions until the
// deadline; after it the creator may sweep what remains.
func (e *Engine) InitiateClosure(ctx context.Context, caller campaign.Principal, campaignID uint64) (c campaign.Campaign, err error) {
	ctx, done := e.track(ctx, "initiate_closure", campaignID, caller)
	defer func() { done(err) }()

	if err = e.lock(campaignID); err != nil {
		return campaign.Campaign{}, err
	}
	defer e.locks.release(campaignID)

	now := e.clock()
	snap := e.custody.Snapshot()

	c, err = e.loadOrZero(ctx, campaignID)
	if err != nil {
		return campaign.Campaign{}, err
	}
	if !c.Exists() || caller != c.Creator {
		return campaign.Campaign{}, campaign.ErrNotCreator
	}
	if c.Status == campaign.StatusCompleted {
		return campaign.Campaign{}, campaign.ErrAlreadyCompleted
	}
	if c.Status != campaign.StatusActive {
		return campaign.Campaign{}, campaign.ErrNotActive
	}

	c.Status = campaign.StatusClosing
	c.ReclaimDeadline = now.Add(snap.ReclaimPeriod).UTC()
	if err = e.store.PutCampaign(ctx, c); err != nil {
		return campaign.Campaign{}, fmt.Errorf("engine: persist campaign: %w", err)
	}

	e.emit(ctx, events.KindClosureInitiated, campaignID, now, events.ClosureInitiated{
		Creator:         caller,
		ReclaimDeadline: c.ReclaimDeadline,
	})
	e.logger.InfoContext(ctx, "closure initiated",
		"campaign_id", campaignID, "creator", caller,
		"reclaim_deadline", c.ReclaimDeadline)
	return c, nil
}

// FinalizeClosureAndWithdraw sweeps the remaining balance to the
// creator once the reclaim window has elapsed. No commission applies.
// With the failed-sweep mode enabled the same path drains a Failed
// campaign whose donors never reclaimed.
func (e *Engine) FinalizeClosureAndWithdraw(ctx context.Context, caller campaign.Principal, campaignID uint64) (r Receipt, err error) {
	ctx, done := e.track(ctx, "finalize_closure", campaignID, caller)
	defer func() { done(err) }()

	if err = e.lock(campaignID); err != nil {
		return Receipt{}, err
	}
	defer e.locks.release(campaignID)

	now := e.clock()
	snap := e.custody.Snapshot()
	if snap.Paused {
		return Receipt{}, campaign.ErrPaused
	}

	c, err := e.loadOrZero(ctx, campaignID)
	if err != nil {
		return Receipt{}, err
	}
	if !c.Exists() || caller != c.Creator {
		return Receipt{}, campaign.ErrNotCreator
	}
	sweepable := c.Status == campaign.StatusClosing ||
		(snap.FailedSweep && c.Status == campaign.StatusFailed)
	if !sweepable {
		return Receipt{}, campaign.ErrNotClosing
	}
	if now.Before(c.ReclaimDeadline) {
		return Receipt{}, campaign.ErrWindowStillOpen
	}

	preCampaign := c
	amount := c.RaisedAmount
	c.RaisedAmount = 0
	c.Status = campaign.StatusClosedByCreator
	if err = e.store.PutCampaign(ctx, c); err != nil {
		return Receipt{}, fmt.Errorf("engine: persist campaign: %w", err)
	}

	batch := gateway.Batch{CampaignID: campaignID}
	if amount > 0 {
		batch.Instructions = append(batch.Instructions, gateway.Push(caller, amount, c.Asset, "closure sweep"))
	}
	if err = e.settle(ctx, batch, func(rctx context.Context) error {
		return e.store.PutCampaign(rctx, preCampaign)
	}); err != nil {
		return Receipt{}, err
	}
	e.annotate(ctx, amount, 0)

	e.emit(ctx, events.KindClosureFinalized, campaignID, now, events.ClosureFinalized{
		Creator: caller,
		Amount:  amount,
	})
	e.logger.InfoContext(ctx, "closure finalized",
		"campaign_id", campaignID, "creator", caller, "amount", amount)
	return Receipt{Campaign: c, Gross: amount, Commission: 0, Net: amount}, nil
}

// FailCampaignIfUnsuccessful marks an Active campaign Failed once its
// deadline has passed without reaching the target, opening the reclaim
// window. Anyone may call it; failure is a fact, not a privilege.
func (e *Engine) FailCampaignIfUnsuccessful(ctx context.Context, caller campaign.Principal, campaignID uint64) (c campaign.Campaign, err error) {
	ctx, done := e.track(ctx, "fail_campaign", campaignID, caller)
	defer func() { done(err) }()

	if err = e.lock(campaignID); err != nil {
		return campaign.Campaign{}, err
	}
	defer e.locks.release(campaignID)

	now := e.clock()
	snap := e.custody.Snapshot()

	c, err = e.loadOrZero(ctx, campaignID)
	if err != nil {
		return campaign.Campaign{}, err
	}
	if c.Status != campaign.StatusActive {
		return campaign.Campaign{}, campaign.ErrNotActive
	}
	if now.Before(c.EndTime) {
		return campaign.Campaign{}, campaign.ErrNotYetEnded
	}
	if c.RaisedAmount >= c.TargetAmount {
		return campaign.Campaign{}, campaign.ErrTargetWasMet
	}

	c.Status = campaign.StatusFailed
	c.ReclaimDeadline = now.Add(snap.ReclaimPeriod).UTC()
	if err = e.store.PutCampaign(ctx, c); err != nil {
		return campaign.Campaign{}, fmt.Errorf("engine: persist campaign: %w", err)
	}

	e.emit(ctx, events.KindCampaignFailed, campaignID, now, events.CampaignFailed{
		Caller:       caller,
		RaisedAmount: c.RaisedAmount,
		TargetAmount: c.TargetAmount,
	})
	e.logger.InfoContext(ctx, "campaign failed",
		"campaign_id", campaignID, "caller", caller,
		"raised", c.RaisedAmount, "target", c.TargetAmount)
	return c, nil
}
