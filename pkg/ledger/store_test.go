package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// runStoreSuite exercises the Store contract against a fresh backend.
func runStoreSuite(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := campaign.Campaign{
		Creator:      "alice",
		Type:         campaign.TypeStartup,
		Asset:        "USD",
		TargetAmount: 1000,
		MetadataRef:  "ipfs://QmSeed",
		EndTime:      base.AddDate(0, 1, 0),
		Status:       campaign.StatusActive,
		CreationTime: base,
	}

	id, err := store.CreateCampaign(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id, "ids start at 1")

	id2, err := store.CreateCampaign(ctx, seed)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id2, "ids are sequential")

	got, err := store.Campaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, seed.Creator, got.Creator)
	assert.Equal(t, seed.Type, got.Type)
	assert.Equal(t, seed.Asset, got.Asset)
	assert.Equal(t, seed.TargetAmount, got.TargetAmount)
	assert.Equal(t, seed.MetadataRef, got.MetadataRef)
	assert.Equal(t, seed.Status, got.Status)
	assert.WithinDuration(t, seed.EndTime, got.EndTime, time.Millisecond)
	assert.WithinDuration(t, seed.CreationTime, got.CreationTime, time.Millisecond)
	assert.True(t, got.ReclaimDeadline.IsZero(), "reclaim deadline unset at creation")

	_, err = store.Campaign(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	got.RaisedAmount = 500
	got.TotalEverRaised = 500
	got.Status = campaign.StatusClosing
	got.ReclaimDeadline = base.AddDate(0, 0, 14)
	require.NoError(t, store.PutCampaign(ctx, got))

	reread, err := store.Campaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(500), reread.RaisedAmount)
	assert.Equal(t, campaign.StatusClosing, reread.Status)
	assert.WithinDuration(t, got.ReclaimDeadline, reread.ReclaimDeadline, time.Millisecond)

	missing := got
	missing.ID = 99
	assert.ErrorIs(t, store.PutCampaign(ctx, missing), ErrNotFound)

	rec, err := store.DonorRecord(ctx, id, "bob")
	require.NoError(t, err)
	assert.Zero(t, rec, "unknown donor yields the zero record")

	require.NoError(t, store.PutDonorRecord(ctx, id, "bob", campaign.DonorRecord{NetContributed: 250}))
	rec, err = store.DonorRecord(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(250), rec.NetContributed)
	assert.False(t, rec.HasReclaimed)

	require.NoError(t, store.PutDonorRecord(ctx, id, "bob", campaign.DonorRecord{NetContributed: 0, HasReclaimed: true}))
	rec, err = store.DonorRecord(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.NetContributed)
	assert.True(t, rec.HasReclaimed)
}
