package engine

import (
	"context"
	"fmt"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
)

// Donate contributes amount (gross, minor units) to a campaign. The
// donation commission for the campaign's type is skimmed up front: the
// campaign is credited the net, the sink receives the fee, and the
// donor's gross authorization is pulled in the same batch. Reaching
// the target completes the campaign in the same call.
func (e *Engine) Donate(ctx context.Context, donor campaign.Principal, campaignID uint64, amount int64) (r Receipt, err error) {
	ctx, done := e.track(ctx, "donate", campaignID, donor)
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
	if c.Status != campaign.StatusActive {
		return Receipt{}, campaign.ErrNotActive
	}
	if !now.Before(c.EndTime) {
		return Receipt{}, campaign.ErrExpired
	}
	if amount <= 0 {
		return Receipt{}, campaign.ErrZeroAmount
	}

	net, fee, err := snap.Policy.Donation(c.Type, amount)
	if err != nil {
		return Receipt{}, err
	}

	rec, err := e.store.DonorRecord(ctx, campaignID, donor)
	if err != nil {
		return Receipt{}, fmt.Errorf("engine: load donor record: %w", err)
	}
	preCampaign, preRecord := c, rec

	rec.NetContributed += net
	if snap.RepeatRefundCycles {
		// A fresh contribution re-arms the reclaim latch.
		rec.HasReclaimed = false
	}
	c.RaisedAmount += net
	c.TotalEverRaised += amount
	completed := false
	if c.RaisedAmount >= c.TargetAmount {
		c.Status = campaign.StatusCompleted
		completed = true
	}

	if err = e.store.PutCampaign(ctx, c); err != nil {
		return Receipt{}, fmt.Errorf("engine: persist campaign: %w", err)
	}
	if err = e.store.PutDonorRecord(ctx, campaignID, donor, rec); err != nil {
		if perr := e.store.PutCampaign(ctx, preCampaign); perr != nil {
			e.logger.ErrorContext(ctx, "rollback after storage failure failed",
				"campaign_id", campaignID, "error", perr)
		}
		return Receipt{}, fmt.Errorf("engine: persist donor record: %w", err)
	}

	batch := gateway.Batch{CampaignID: campaignID}
	batch.Instructions = append(batch.Instructions, gateway.Pull(donor, amount, c.Asset, "donation"))
	if fee > 0 {
		batch.Instructions = append(batch.Instructions, gateway.Push(snap.Sink, fee, c.Asset, "donation commission"))
	}
	if err = e.settle(ctx, batch, func(rctx context.Context) error {
		if perr := e.store.PutCampaign(rctx, preCampaign); perr != nil {
			return perr
		}
		return e.store.PutDonorRecord(rctx, campaignID, donor, preRecord)
	}); err != nil {
		return Receipt{}, err
	}
	e.annotate(ctx, amount, fee)

	e.emit(ctx, events.KindDonationAccepted, campaignID, now, events.DonationAccepted{
		Donor:        donor,
		Gross:        amount,
		Commission:   fee,
		Net:          net,
		RaisedAmount: c.RaisedAmount,
		Completed:    completed,
	})
	e.logger.InfoContext(ctx, "donation accepted",
		"campaign_id", campaignID, "donor", donor, "gross", amount,
		"net", net, "commission", fee, "completed", completed)
	return Receipt{Campaign: c, Gross: amount, Commission: fee, Net: net}, nil
}
