package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/config"
)

func TestWithdrawFundsSkimsSuccessCommission(t *testing.T) {
	f := newFixture(t, func(p *config.Params) {
		p.SuccessRates[campaign.TypeStartup] = 500
	})
	ctx := context.Background()
	c := f.create(1000)

	_, err := f.engine.Donate(ctx, "bob", c.ID, 1000)
	require.NoError(t, err)

	r, err := f.engine.WithdrawFunds(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusWithdrawn, r.Campaign.Status)
	assert.Zero(t, r.Campaign.RaisedAmount)
	assert.EqualValues(t, 1000, r.Gross)
	assert.EqualValues(t, 50, r.Commission)
	assert.EqualValues(t, 950, r.Net)
	assert.EqualValues(t, 950, f.gateway.Pushed("alice"))
	assert.EqualValues(t, 50, f.gateway.Pushed("treasury"))
}

func TestWithdrawFundsPreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(100)
	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)

	_, err = f.engine.WithdrawFunds(ctx, "mallory", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotCreator)

	active := f.create(10_000)
	_, err = f.engine.WithdrawFunds(ctx, "alice", active.ID)
	assert.ErrorIs(t, err, campaign.ErrNotCompleted)

	// Withdrawing twice finds the campaign already drained.
	_, err = f.engine.WithdrawFunds(ctx, "alice", c.ID)
	require.NoError(t, err)
	_, err = f.engine.WithdrawFunds(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotCompleted)
}

func TestWithdrawFundsPaused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(100)
	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)

	require.NoError(t, f.custody.SetPaused("owner", true))
	_, err = f.engine.WithdrawFunds(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, campaign.ErrPaused)
}

func TestWithdrawFundsRefusedRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(100)
	_, err := f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)

	f.gateway.RefuseNext(errors.New("bank closed"))
	_, err = f.engine.WithdrawFunds(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, campaign.ErrTransferFailed)

	got, err := f.engine.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCompleted, got.Status)
	assert.EqualValues(t, 100, got.RaisedAmount)

	r, err := f.engine.WithdrawFunds(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 100, r.Net)
}

func TestCancelCampaign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(1000)

	got, err := f.engine.CancelCampaign(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCancelled, got.Status)
	assert.Empty(t, f.gateway.Batches())
}

func TestCancelCampaignPreconditionOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(1000)

	_, err := f.engine.CancelCampaign(ctx, "mallory", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotCreator)

	// Holding funds blocks cancellation.
	_, err = f.engine.Donate(ctx, "bob", c.ID, 100)
	require.NoError(t, err)
	_, err = f.engine.CancelCampaign(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, campaign.ErrHasDonations)

	// A fully refunded campaign is cancellable again.
	_, err = f.engine.ClaimRefund(ctx, "bob", c.ID)
	require.NoError(t, err)
	got, err := f.engine.CancelCampaign(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCancelled, got.Status)

	// Terminal campaigns reject cancellation outright.
	held := got
	held.RaisedAmount = 5
	require.NoError(t, f.store.PutCampaign(ctx, held))
	_, err = f.engine.CancelCampaign(ctx, "alice", c.ID)
	assert.ErrorIs(t, err, campaign.ErrNotCancellable)
}

func TestCancelCampaignWhileClosing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.create(1000)

	_, err := f.engine.InitiateClosure(ctx, "alice", c.ID)
	require.NoError(t, err)

	// Closing is not terminal; an empty closing campaign may cancel.
	got, err := f.engine.CancelCampaign(ctx, "alice", c.ID)
	require.NoError(t, err)
	assert.Equal(t, campaign.StatusCancelled, got.Status)
}
