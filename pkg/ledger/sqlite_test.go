package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

func TestSQLiteStoreContract(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer store.Close()
	runStoreSuite(t, store)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store, err := NewSQLiteStore(path)
	require.NoError(t, err)

	id, err := store.CreateCampaign(ctx, campaign.Campaign{
		Creator:      "alice",
		Type:         campaign.TypeCharity,
		Asset:        "USD",
		TargetAmount: 100,
		MetadataRef:  "ipfs://QmReopen",
		EndTime:      base.AddDate(0, 1, 0),
		Status:       campaign.StatusActive,
		CreationTime: base,
	})
	require.NoError(t, err)
	require.NoError(t, store.PutDonorRecord(ctx, id, "bob", campaign.DonorRecord{NetContributed: 40}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Campaign(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, campaign.Principal("alice"), got.Creator)

	rec, err := reopened.DonorRecord(ctx, id, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(40), rec.NetContributed)

	// The id counter continues where it left off.
	next, err := reopened.CreateCampaign(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestParseTimeFallbacks(t *testing.T) {
	nano := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	assert.True(t, parseTime(nano.Format(time.RFC3339Nano)).Equal(nano))

	sec := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, parseTime(sec.Format(time.RFC3339)).Equal(sec))

	assert.True(t, parseTime("garbage").IsZero())
}
