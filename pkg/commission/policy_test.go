package commission

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

func testPolicy(t *testing.T, donationBps, refundBps, successBps Rate) Policy {
	t.Helper()
	p, err := NewPolicy(
		map[campaign.Type]Rate{campaign.TypeStartup: donationBps, campaign.TypeCharity: 0},
		refundBps,
		map[campaign.Type]Rate{campaign.TypeStartup: successBps, campaign.TypeCharity: successBps},
	)
	require.NoError(t, err)
	return p
}

func TestRateApply(t *testing.T) {
	cases := []struct {
		name   string
		rate   Rate
		amount int64
		fee    int64
	}{
		{"zero rate", 0, 1000, 0},
		{"two percent", 200, 1000, 20},
		{"ten percent", 1000, 500, 50},
		{"floor truncates", 250, 999, 24}, // 999*250/10000 = 24.975
		{"full rate", Denominator, 12345, 12345},
		{"one bps of one", 1, 1, 0},
		{"huge amount no overflow", Denominator, math.MaxInt64, math.MaxInt64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rem, fee := tc.rate.Apply(tc.amount)
			assert.Equal(t, tc.fee, fee)
			assert.Equal(t, tc.amount-tc.fee, rem)
		})
	}
}

func TestNewPolicyRejectsOutOfRange(t *testing.T) {
	_, err := NewPolicy(map[campaign.Type]Rate{campaign.TypeStartup: 10001}, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = NewPolicy(nil, -1, nil)
	assert.ErrorIs(t, err, ErrInvalidRate)

	_, err = NewPolicy(nil, 0, map[campaign.Type]Rate{campaign.TypeCharity: Denominator + 1})
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestDonationSplit(t *testing.T) {
	p := testPolicy(t, 200, 1000, 500)

	net, fee, err := p.Donation(campaign.TypeStartup, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(980), net)
	assert.Equal(t, int64(20), fee)

	net, fee, err = p.Donation(campaign.TypeCharity, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), net)
	assert.Equal(t, int64(0), fee)

	_, _, err = p.Donation(campaign.Type("unknown"), 1000)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestRefundSplit(t *testing.T) {
	p := testPolicy(t, 0, 1000, 0)
	toDonor, fee := p.Refund(500)
	assert.Equal(t, int64(450), toDonor)
	assert.Equal(t, int64(50), fee)
}

func TestSuccessSplit(t *testing.T) {
	p := testPolicy(t, 0, 0, 500)
	toCreator, fee, err := p.Success(campaign.TypeCharity, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(9500), toCreator)
	assert.Equal(t, int64(500), fee)
}

func TestRateAccessors(t *testing.T) {
	p := testPolicy(t, 200, 100, 500)
	assert.Equal(t, Rate(100), p.RefundRate())

	r, ok := p.DonationRate(campaign.TypeStartup)
	require.True(t, ok)
	assert.Equal(t, Rate(200), r)

	_, ok = p.SuccessRate(campaign.Type("unknown"))
	assert.False(t, ok)
}
