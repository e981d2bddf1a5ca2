package observability

import (
	"go.opentelemetry.io/otel/attribute"
)

// Custody semantic convention attributes.
var (
	AttrCampaignID   = attribute.Key("coffer.campaign.id")
	AttrCampaignType = attribute.Key("coffer.campaign.type")
	AttrStatus       = attribute.Key("coffer.campaign.status")
	AttrOperation    = attribute.Key("coffer.operation")
	AttrPrincipal    = attribute.Key("coffer.principal")
	AttrAsset        = attribute.Key("coffer.asset")
	AttrAmount       = attribute.Key("coffer.amount")
	AttrCommission   = attribute.Key("coffer.commission")
)

// Operation builds the attribute set shared by every custody span.
func Operation(name string, campaignID uint64, principal string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrOperation.String(name),
		AttrCampaignID.Int64(int64(campaignID)),
		AttrPrincipal.String(principal),
	}
}

// Movement extends an attribute set with the amounts a money-moving
// operation settled.
func Movement(attrs []attribute.KeyValue, amount, commission int64) []attribute.KeyValue {
	return append(attrs,
		AttrAmount.Int64(amount),
		AttrCommission.Int64(commission),
	)
}
