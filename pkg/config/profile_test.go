package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/commission"
)

const validProfile = `schema_version: "1.1.0"
code: standard
description: Default commission schedule
commission_sink: treasury
reclaim_period_days: 14
rates:
  donation:
    startup: 250
    charity: 0
  refund: 100
  success:
    startup: 500
    charity: 100
assets:
  - USD
  - EUR
toggles:
  repeat_refund_cycles: true
  failed_sweep: false
`

func writeProfile(t *testing.T, code, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profile_"+code+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return dir
}

func TestLoadProfile(t *testing.T) {
	dir := writeProfile(t, "standard", validProfile)

	p, err := LoadProfile(dir, "standard")
	require.NoError(t, err)
	assert.Equal(t, "standard", p.Code)
	assert.Equal(t, "treasury", p.Sink)
	assert.Equal(t, 14, p.ReclaimPeriodDays)
	assert.Equal(t, int64(250), p.Rates.Donation["startup"])
	assert.Equal(t, int64(100), p.Rates.Refund)
	require.NotNil(t, p.Toggles.FailedSweep)
	assert.False(t, *p.Toggles.FailedSweep)
}

func TestLoadProfileRejectsUnknownKeys(t *testing.T) {
	dir := writeProfile(t, "bad", validProfile+"surprise_key: true\n")

	_, err := LoadProfile(dir, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")
}

func TestLoadProfileRejectsOutOfRangeRate(t *testing.T) {
	body := `schema_version: "1.0.0"
code: bad
rates:
  donation:
    startup: 10001
  refund: 0
  success: {}
`
	dir := writeProfile(t, "bad", body)
	_, err := LoadProfile(dir, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed validation")
}

func TestLoadProfileRejectsUnsupportedSchemaVersion(t *testing.T) {
	body := `schema_version: "2.0.0"
code: future
rates:
  donation: {}
  refund: 0
  success: {}
`
	dir := writeProfile(t, "future", body)
	_, err := LoadProfile(dir, "future")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside supported range")
}

func TestProfileParams(t *testing.T) {
	dir := writeProfile(t, "standard", validProfile)
	p, err := LoadProfile(dir, "standard")
	require.NoError(t, err)

	prm, err := p.Params("owner")
	require.NoError(t, err)
	assert.Equal(t, campaign.Principal("owner"), prm.Owner)
	assert.Equal(t, campaign.Principal("treasury"), prm.Sink)
	assert.Equal(t, 14*24*time.Hour, prm.ReclaimPeriod)
	assert.Equal(t, commission.Rate(250), prm.DonationRates[campaign.TypeStartup])
	assert.Equal(t, commission.Rate(100), prm.RefundRate)
	assert.Equal(t, commission.Rate(500), prm.SuccessRates[campaign.TypeStartup])
	assert.Equal(t, []string{"USD", "EUR"}, prm.Assets)
	assert.True(t, prm.RepeatRefundCycles)
	assert.False(t, prm.FailedSweep, "explicit failed_sweep: false wins")

	custody, err := NewCustody(prm)
	require.NoError(t, err)
	assert.True(t, custody.Snapshot().AssetAllowed("USD"))
	assert.False(t, custody.Snapshot().AssetAllowed("GBP"))
}

func TestProfileParamsDefaultsFailedSweepOn(t *testing.T) {
	body := `schema_version: "1.0.0"
code: plain
rates:
  donation: {}
  refund: 0
  success: {}
`
	dir := writeProfile(t, "plain", body)
	p, err := LoadProfile(dir, "plain")
	require.NoError(t, err)

	prm, err := p.Params("owner")
	require.NoError(t, err)
	assert.True(t, prm.FailedSweep)
	assert.Equal(t, DefaultReclaimPeriod, prm.ReclaimPeriod)
}

func TestLoadProfiles(t *testing.T) {
	dir := writeProfile(t, "standard", validProfile)
	second := `schema_version: "1.0.0"
code: zerofee
rates:
  donation: {}
  refund: 0
  success: {}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "profile_zerofee.yaml"), []byte(second), 0o600))

	profiles, err := LoadProfiles(dir)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
	assert.Contains(t, profiles, "standard")
	assert.Contains(t, profiles, "zerofee")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("COFFER_LISTEN_ADDR", "")
	t.Setenv("COFFER_PROFILE", "")
	cfg := Load()
	assert.Equal(t, ":8086", cfg.ListenAddr)
	assert.Equal(t, "standard", cfg.ProfileCode)
	assert.Equal(t, "profiles", cfg.ProfileDir)
}
