package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/config"
)

func TestClaimRefundSkimsCommission(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RefundRate = 1000
	})
	ctx := context.Background()
	c := f.create(10_000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 500)
	require.NoError(t, err)

	r, err := f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, r.Gross)
	assert.EqualValues(t, 50, r.Commission)
	assert.EqualValues(t, 450, r.Net)
	assert.Zero(t, r.Campaign.RaisedAmount)
	assert.EqualValues(t, 500, r.Campaign.TotalEverRaised)

	rec, err := f.engine.DonorRecord(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.Zero(t, rec.NetContributed)
	assert.True(t, rec.HasReclaimed)

	assert.EqualValues(t, 450, f.gateway.Pushed("bob"))
	assert.EqualValues(t, 50, f.gateway.Pushed("treasury"))
}

func TestClaimRefundPreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Completed campaigns reject refunds in the default mode.
	c := f.create(100)
	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)
	_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotRefundable)

	// The window check outranks the contribution checks.
	c2 := f.create(10_000)
	_, err = f.engine.Donate(ctx, "bob", c2.ID, 100)
	require.NoError(t, err)
	_, err = f.engine.InitiateClosure(ctx, "alice", c2.ID)
	require.NoError(t, err)
	f.advance(15 * 24 * time.Hour)
	_, err = f.engine.ClaimRefund(ctx, "bob", c2.ID)
	assert.ErrorIs(t, err, campaign.ErrReclaimWindowClosed)

	f.now = epoch
	c3 := f.create(10_000)
	_, err = f.engine.ClaimRefund(ctx, "stranger", c3.ID)
	assert.ErrorIs(t, err, campaign.ErrNoContribution)

	// A reclaimed position reads as no contribution.
	_, err = f.engine.Donate(ctx, "bob", c3.ID, 100)
	require.NoError(t, err)
	_, err = f.engine.ClaimRefund(ctx, "bob", c3.ID)
	require.NoError(t, err)
	_, err = f.engine.ClaimRefund(ctx, "bob", c3.ID)
	assert.ErrorIs(t, err, campaign.ErrNoContribution)

	// The one-shot latch blocks refunds of later contributions.
	_, err = f.engine.Donate(ctx, "bob", c3.ID, 100)
	require.NoError(t, err)
	_, err = f.engine.ClaimRefund(ctx, "bob", c3.ID)
	assert.ErrorIs(t, err, campaign.ErrAlreadyReclaimed)
}

func TestClaimRefundRepeatCyclesRearmLatch(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RepeatRefundCycles = true
	})
	ctx := context.Background()
	c := f.create(10_000)

	for i := 0; i < 3; i++ {
		_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
		require.NoError(t, err)
		r, err := f.engine.ClaimRefund(ctx, "bob", c.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 100, r.Net)
	}
	assert.EqualValues(t, 300, f.gateway.Pulled("bob"))
	assert.EqualValues(t, 300, f.gateway.Pushed("bob"))
}

func TestClaimRefundFailedWaivesCommission(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RefundRate = 1000
	})
	ctx := context.Background()
	c := f.create(10_000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 500)
	require.NoError(t, err)

	f.advance(31 * 24 * time.Hour)
	_, err = f.engine.FailCampaignIfUnsuccessful(ctx, "watchdog", c.ID)
	require.NoError(t, err)

	r, err := f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 500, r.Gross)
	assert.Zero(t, r.Commission)
	assert.EqualValues(t, 500, r.Net)
	assert.EqualValues(t, 500, f.gateway.Pushed("bob"))
	assert.Zero(t, f.gateway.Pushed("treasury"))
}

func TestClaimRefundClosingWindowBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(10_000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)
	_, err = f.engine.Donate(ctx, "carol", c.ID, 200)
	require.NoError(t, err)

	closing, err := f.engine.InitiateClosure(ctx, "alice", c.ID)
	require.NoError(t, err)

	// Inside the window refunds settle.
	f.now = closing.ReclaimDeadline.Add(-time.Second)
	_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)

	// At the deadline the window is closed.
	f.now = closing.ReclaimDeadline
	_, err = f.engine.ClaimRefund(ctx, "carol", c.ID)
	assert.ErrorIs(t, err, campaign.ErrReclaimWindowClosed)
}

func TestClaimRefundFromCompletedDemotes(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RefundFromCompleted = true
	})
	ctx := context.Background()
	c := f.create(500)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 40)
	require.NoError(t, err)
	_, err = f.engine.Donate(ctx, "carol", c.ID, 500)
	require.NoError(t, err)

	// Still at or above target after a small refund.
	r, err := f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, r.Campaign.Status)
	assert.EqualValues(t, 500, r.Campaign.RaisedAmount)

	// Dropping below target demotes back to Active.
	r, err = f.engine.ClaimRefund(ctx, "carol", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, r.Campaign.Status)
	assert.Zero(t, r.Campaign.RaisedAmount)

	// The demoted campaign accepts donations again.
	r2, err := f.engine.Donate(ctx, "dave", c.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, r2.Campaign.Status)
}

func TestClaimRefundPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(10_000)
	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)

	require.NoError(t, f.custody.SetPaused("owner", true))
	_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
	assert.ErrorIs(t, err, campaign.ErrPaused)
}

func TestClaimRefundRefusedRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(10_000)
	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)

	f.gateway.RefuseNext(errors.New("bank closed"))
	_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
	assert.ErrorIs(t, err, campaign.ErrTransferFailed)

	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, got.RaisedAmount)

	rec, err := f.engine.DonorRecord(ctx, c.ID, "bob")
	require.NoError(t, err)
	assert.EqualValues(t, 100, rec.NetContributed)
	assert.False(t, rec.HasReclaimed)

	// The position is still claimable once the gateway recovers.
	_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
}
