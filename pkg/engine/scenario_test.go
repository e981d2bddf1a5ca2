package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/config"
	"github.com/Tessera-Labs/coffer/pkg/events"
	"github.com/Tessera-Labs/coffer/pkg/gateway"
)

// conserved asserts the fundamental custody identity: everything ever
// pulled in equals what is still held plus everything pushed out.
func conserved(t *testing.T, f *fixture, parties ...campaign.Principal) {
	t.Helper()
	var pulled, pushed int64
	for _, p := range parties {
		pulled += f.gateway.Pulled(p)
		pushed += f.gateway.Pushed(p)
	}
	var held int64
	for id := uint64(1); ; id++ {
		c, err := f.engine.Campaign(context.Background(), id)
		if err != nil {
			break
		}
		held += c.RaisedAmount
	}
	assert.Equal(t, pulled, held+pushed, "pulled %d, held %d, pushed %d", pulled, held, pushed)
}

// Free-tier lifecycle: two donations overshoot the target and the
// creator withdraws the full custodial balance.
func TestFlowTargetOvershoot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(1000)

	r, err := f.engine.Donate(ctx, "bob", c.ID, 600)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusActive, r.Campaign.Status)

	r, err = f.engine.Donate(ctx, "carol", c.ID, 500)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, r.Campaign.Status)
	assert.EqualValues(t, 1100, r.Campaign.RaisedAmount)
	assert.EqualValues(t, 1100, r.Campaign.TotalEverRaised)

	r, err = f.engine.WithdrawFunds(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1100, r.Net)
	assert.Zero(t, r.Commission)
	assert.EqualValues(t, 1100, f.gateway.Pushed("alice"))

	require.NoError(t, f.engine.Journal().VerifyChain())
	conserved(t, f, "alice", "bob", "carol", "treasury")
}

// Commissioned lifecycle: donation, refund and success commissions all
// land in the sink while the books stay balanced.
func TestFlowCommissionedCampaign(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.DonationRates[campaign.TypeStartup] = 200
		p.RefundRate = 1000
		p.SuccessRates[campaign.TypeStartup] = 500
	})
	ctx := context.Background()
	c := f.create(2000)

	// 200 bps on the way in: 1000 gross credits 980.
	r, err := f.engine.Donate(ctx, "bob", c.ID, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 980, r.Net)
	assert.EqualValues(t, 20, r.Commission)

	_, err = f.engine.Donate(ctx, "carol", c.ID, 500)
	require.NoError(t, err)
	conserved(t, f, "alice", "bob", "carol", "treasury")

	// 1000 bps on the way out: carol's 490 returns 441.
	r, err = f.engine.ClaimRefund(ctx, "carol", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 490, r.Gross)
	assert.EqualValues(t, 49, r.Commission)
	assert.EqualValues(t, 441, r.Net)
	conserved(t, f, "alice", "bob", "carol", "treasury")

	// Completion and the 500 bps success skim.
	_, err = f.engine.Donate(ctx, "dave", c.ID, 1040)
	require.NoError(t, err)
	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusCompleted, got.Status)

	r, err = f.engine.WithdrawFunds(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2000, r.Gross)
	assert.EqualValues(t, 100, r.Commission)
	assert.EqualValues(t, 1900, r.Net)

	require.NoError(t, f.engine.Journal().VerifyChain())
	conserved(t, f, "alice", "bob", "carol", "dave", "treasury")
}

// Failure lifecycle: the deadline passes below target, anyone flips
// the campaign to Failed, donors reclaim in full, and the creator
// sweeps what was never claimed once the window lapses.
func TestFlowFailedCampaign(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RefundRate = 1000
	})
	ctx := context.Background()
	c := f.create(10_000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 700)
	require.NoError(t, err)
	_, err = f.engine.Donate(ctx, "carol", c.ID, 300)
	require.NoError(t, err)

	f.advance(31 * 24 * time.Hour)
	failed, err := f.engine.FailCampaignIfUnsuccessful(ctx, "watchdog", c.ID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusFailed, failed.Status)

	// Failure waives the refund commission entirely.
	r, err := f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 700, r.Net)
	assert.Zero(t, r.Commission)

	// Carol never reclaims; the creator sweeps her 300 after the window.
	f.now = failed.ReclaimDeadline
	r, err = f.engine.FinalizeClosureAndWithdraw(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 300, r.Net)
	assert.Equal(t, campaign.StatusClosedByCreator, r.Campaign.Status)

	// Too late for carol now.
	_, err = f.engine.ClaimRefund(ctx, "carol", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotRefundable)

	require.NoError(t, f.engine.Journal().VerifyChain())
	conserved(t, f, "alice", "bob", "carol", "treasury")
}

// Voluntary closure: refunds run inside the reclaim window, the sweep
// runs after it, and the journal records the whole story in order.
func TestFlowCreatorClosure(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RefundRate = 500
	})
	ctx := context.Background()
	c := f.create(10_000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 400)
	require.NoError(t, err)
	_, err = f.engine.Donate(ctx, "carol", c.ID, 600)
	require.NoError(t, err)

	closing, err := f.engine.InitiateClosure(ctx, "alice", c.ID)
	require.NoError(t, err)

	r, err := f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 380, r.Net)
	assert.EqualValues(t, 20, r.Commission)

	f.now = closing.ReclaimDeadline
	r, err = f.engine.FinalizeClosureAndWithdraw(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 600, r.Net)

	kinds := make([]events.Kind, 0, f.engine.Journal().Len())
	for _, ev := range f.engine.Journal().Query(events.Filter{CampaignID: c.ID}) {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []events.Kind{
		events.KindCampaignCreated,
		events.KindDonationAccepted,
		events.KindDonationAccepted,
		events.KindClosureInitiated,
		events.KindRefundClaimed,
		events.KindClosureFinalized,
	}, kinds)

	require.NoError(t, f.engine.Journal().VerifyChain())
	conserved(t, f, "alice", "bob", "carol", "treasury")
}

// A gateway callback that re-enters WithdrawFunds during settlement is
// rejected and exactly one payout reaches the creator.
func TestFlowReentrantWithdrawRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(1000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 1000)
	require.NoError(t, err)

	var innerErr error
	attempts := 0
	f.gateway.RefuseWhen(func(b gateway.Batch) error {
		if attempts > 0 {
			return nil
		}
		attempts++
		_, innerErr = f.engine.WithdrawFunds(ctx, "alice", c.ID)
		return nil
	})

	r, err := f.engine.WithdrawFunds(ctx, "alice", c.ID)
	require.NoError(t, err)
	require.ErrorIs(t, innerErr, ErrReentrant)
	assert.EqualValues(t, 1000, r.Net)

	// Exactly one payout.
	assert.EqualValues(t, 1000, f.gateway.Pushed("alice"))
	assert.Equal(t, campaign.StatusWithdrawn, r.Campaign.Status)

	// And the journal saw exactly one withdrawal.
	withdrawals := f.engine.Journal().Query(events.Filter{Kind: events.KindFundsWithdrawn})
	assert.Len(t, withdrawals, 1)
}

// The repeat-cycle configuration supports donate/refund churn without
// ever unbalancing the books.
func TestFlowRepeatRefundCycles(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.RepeatRefundCycles = true
		p.DonationRates[campaign.TypeStartup] = 100
		p.RefundRate = 100
	})
	ctx := context.Background()
	c := f.create(1_000_000)

	for i := 0; i < 5; i++ {
		_, err := f.engine.Donate(ctx, "bob", c.ID, 10_000)
		require.NoError(t, err)
		_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
		require.NoError(t, err)
		conserved(t, f, "alice", "bob", "treasury")
	}

	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, got.RaisedAmount)
	assert.EqualValues(t, 50_000, got.TotalEverRaised)
	// 1% in and 1% out of the remaining 99%.
	assert.EqualValues(t, 5*(100+99), f.gateway.Pushed("treasury"))
}
