package engine

import (
	"context"
	"fmt"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
)

// ClaimRefund returns a donor's full net contribution, minus the
// refund commission. The commission is waived when the campaign has
// Failed. A Closing campaign honours refunds only while the reclaim
// window is open. Refunding below the target demotes a Completed
// campaign back to Active when that mode is enabled.
func (e *Engine) ClaimRefund(ctx context.Context, donor campaign.Principal, campaignID uint64) (r Receipt, err error) {
	ctx, done := e.track(ctx, "claim_refund", campaignID, donor)
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
	refundable := c.Status.Refundable() ||
		(snap.RefundFromCompleted && c.Status == campaign.StatusCompleted)
	if !refundable {
		return Receipt{}, campaign.ErrNotRefundable
	}
	if c.Status == campaign.StatusClosing && !now.Before(c.ReclaimDeadline) {
		return Receipt{}, campaign.ErrReclaimWindowClosed
	}

	rec, err := e.store.DonorRecord(ctx, campaignID, donor)
	if err != nil {
		return Receipt{}, fmt.Errorf("engine: load donor record: %w", err)
	}
	if rec.NetContributed == 0 {
		return Receipt{}, campaign.ErrNoContribution
	}
	if rec.HasReclaimed {
		return Receipt{}, campaign.ErrAlreadyReclaimed
	}

	contribution := rec.NetContributed
	var toDonor, fee int64
	if c.Status == campaign.StatusFailed {
		// Failure waives the refund commission.
		toDonor, fee = contribution, 0
	} else {
		toDonor, fee = snap.Policy.Refund(contribution)
	}

	preCampaign, preRecord := c, rec
	rec.NetContributed = 0
	rec.HasReclaimed = true
	c.RaisedAmount -= contribution
	if c.Status == campaign.StatusCompleted && c.RaisedAmount < c.TargetAmount {
		c.Status = campaign.StatusActive
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
	if fee > 0 {
		batch.Instructions = append(batch.Instructions, gateway.Push(snap.Sink, fee, c.Asset, "refund commission"))
	}
	if toDonor > 0 {
		batch.Instructions = append(batch.Instructions, gateway.Push(donor, toDonor, c.Asset, "refund"))
	}
	if err = e.settle(ctx, batch, func(rctx context.Context) error {
		if perr := e.store.PutCampaign(rctx, preCampaign); perr != nil {
			return perr
		}
		return e.store.PutDonorRecord(rctx, campaignID, donor, preRecord)
	}); err != nil {
		return Receipt{}, err
	}
	e.annotate(ctx, contribution, fee)

	e.emit(ctx, events.KindRefundClaimed, campaignID, now, events.RefundClaimed{
		Donor:        donor,
		Gross:        contribution,
		Commission:   fee,
		Net:          toDonor,
		RaisedAmount: c.RaisedAmount,
		Status:       c.Status,
	})
	e.logger.InfoContext(ctx, "refund claimed",
		"campaign_id", campaignID, "donor", donor, "gross", contribution,
		"net", toDonor, "commission", fee, "status", c.Status)
	return Receipt{Campaign: c, Gross: contribution, Commission: fee, Net: toDonor}, nil
}
