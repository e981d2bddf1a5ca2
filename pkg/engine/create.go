package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/commission"
	"github.com/Tessera-Labs/coffer/pkg/events"
)

// CreateParams describes a campaign to be opened.
type CreateParams struct {
	Type         campaign.Type `json:"campaign_type"`
	Asset        string        `json:"accepted_asset"`
	TargetAmount int64         `json:"target_amount"`
	EndTime      time.Time     `json:"end_time"`
	MetadataRef  string        `json:"metadata_ref"`
}

// CreateCampaign opens a new Active campaign for creator. Validation
// order: target, deadline, metadata, asset whitelist, commission sink,
// campaign type. The admission screen runs last, after every built-in
// check.
func (e *Engine) CreateCampaign(ctx context.Context, creator campaign.Principal, p CreateParams) (c campaign.Campaign, err error) {
	ctx, done := e.track(ctx, "create_campaign", 0, creator)
	defer func() { done(err) }()

	now := e.clock()
	snap := e.custody.Snapshot()

	if p.TargetAmount <= 0 {
		return campaign.Campaign{}, campaign.ErrInvalidTarget
	}
	if !p.EndTime.After(now) {
		return campaign.Campaign{}, campaign.ErrInvalidDeadline
	}
	if p.MetadataRef == "" {
		return campaign.Campaign{}, campaign.ErrEmptyMetadata
	}
	if !snap.AssetAllowed(p.Asset) {
		return campaign.Campaign{}, campaign.ErrAssetNotAllowed
	}
	if snap.Sink.IsZero() {
		return campaign.Campaign{}, campaign.ErrNoCommissionSink
	}
	if !p.Type.Valid() {
		return campaign.Campaign{}, fmt.Errorf("%w: %q", commission.ErrUnknownType, p.Type)
	}
	if err = e.admit(creator, p, now); err != nil {
		return campaign.Campaign{}, err
	}

	c = campaign.Campaign{
		Creator:      creator,
		Type:         p.Type,
		Asset:        p.Asset,
		TargetAmount: p.TargetAmount,
		MetadataRef:  p.MetadataRef,
		EndTime:      p.EndTime.UTC(),
		Status:       campaign.StatusActive,
		CreationTime: now.UTC(),
	}
	id, err := e.store.CreateCampaign(ctx, c)
	if err != nil {
		return campaign.Campaign{}, fmt.Errorf("engine: create campaign: %w", err)
	}
	c.ID = id

	e.emit(ctx, events.KindCampaignCreated, id, now, events.CampaignCreated{
		Creator:      creator,
		CampaignType: p.Type,
		Asset:        p.Asset,
		TargetAmount: p.TargetAmount,
		EndTime:      c.EndTime,
		MetadataRef:  p.MetadataRef,
	})
	e.logger.InfoContext(ctx, "campaign created",
		"campaign_id", id, "creator", creator, "type", p.Type,
		"target", p.TargetAmount, "asset", p.Asset)
	return c, nil
}
