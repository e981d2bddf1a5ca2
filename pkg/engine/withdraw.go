package engine

import (
	"context"
	"fmt"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
)

// WithdrawFunds pays out a Completed campaign to its creator, skimming
// the success commission for the campaign's type. The campaign ends
// Withdrawn with a zero balance.
func (e *Engine) WithdrawFunds(ctx context.Context, caller campaign.Principal, campaignID uint64) (r Receipt, err error) {
	ctx, done := e.track(ctx, "withdraw_funds", campaignID, caller)
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
	if c.Status != campaign.StatusCompleted {
		return Receipt{}, campaign.ErrNotCompleted
	}

	gross := c.RaisedAmount
	toCreator, fee, err := snap.Policy.Success(c.Type, gross)
	if err != nil {
		return Receipt{}, err
	}

	preCampaign := c
	c.RaisedAmount = 0
	c.Status = campaign.StatusWithdrawn
	if err = e.store.PutCampaign(ctx, c); err != nil {
		return Receipt{}, fmt.Errorf("engine: persist campaign: %w", err)
	}

	batch := gateway.Batch{CampaignID: campaignID}
	if fee > 0 {
		batch.Instructions = append(batch.Instructions, gateway.Push(snap.Sink, fee, c.Asset, "success commission"))
	}
	if toCreator > 0 {
		batch.Instructions = append(batch.Instructions, gateway.Push(caller, toCreator, c.Asset, "withdrawal"))
	}
	if err = e.settle(ctx, batch, func(rctx context.Context) error {
		return e.store.PutCampaign(rctx, preCampaign)
	}); err != nil {
		return Receipt{}, err
	}
	e.annotate(ctx, gross, fee)

	e.emit(ctx, events.KindFundsWithdrawn, campaignID, now, events.FundsWithdrawn{
		Creator:    caller,
		Gross:      gross,
		Commission: fee,
		Net:        toCreator,
	})
	e.logger.InfoContext(ctx, "funds withdrawn",
		"campaign_id", campaignID, "creator", caller, "gross", gross,
		"net", toCreator, "commission", fee)
	return Receipt{Campaign: c, Gross: gross, Commission: fee, Net: toCreator}, nil
}

// CancelCampaign retires a campaign that never took custody of any
// funds. Any non-terminal status qualifies as long as the balance is
// zero; nothing moves, so no window or commission applies.
func (e *Engine) CancelCampaign(ctx context.Context, caller campaign.Principal, campaignID uint64) (c campaign.Campaign, err error) {
	ctx, done := e.track(ctx, "cancel_campaign", campaignID, caller)
	defer func() { done(err) }()

	if err = e.lock(campaignID); err != nil {
		return campaign.Campaign{}, err
	}
	defer e.locks.release(campaignID)

	now := e.clock()

	c, err = e.loadOrZero(ctx, campaignID)
	if err != nil {
		return campaign.Campaign{}, err
	}
	if !c.Exists() || caller != c.Creator {
		return campaign.Campaign{}, campaign.ErrNotCreator
	}
	if c.Status.Terminal() {
		return campaign.Campaign{}, campaign.ErrNotCancellable
	}
	if c.RaisedAmount != 0 {
		return campaign.Campaign{}, campaign.ErrHasDonations
	}

	c.Status = campaign.StatusCancelled
	if err = e.store.PutCampaign(ctx, c); err != nil {
		return campaign.Campaign{}, fmt.Errorf("engine: persist campaign: %w", err)
	}

	e.emit(ctx, events.KindCampaignCancelled, campaignID, now, events.CampaignCancelled{
		Creator: caller,
	})
	e.logger.InfoContext(ctx, "campaign cancelled",
		"campaign_id", campaignID, "creator", caller)
	return c, nil
}
