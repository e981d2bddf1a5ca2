// Package events records every successful custody operation in an
// append-only, hash-chained journal. The journal is the system's only
// observation surface: entries are emitted after an operation commits,
// never for rejected attempts.
package events

import (
	"encoding/json"
	"time"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// Kind categorizes journal events, one per custody operation.
type Kind string

const (
	KindCampaignCreated   Kind = "campaign_created"
	KindDonationAccepted  Kind = "donation_accepted"
	KindRefundClaimed     Kind = "refund_claimed"
	KindClosureInitiated  Kind = "closure_initiated"
	KindClosureFinalized  Kind = "closure_finalized"
	KindCampaignFailed    Kind = "campaign_failed"
	KindFundsWithdrawn    Kind = "funds_withdrawn"
	KindCampaignCancelled Kind = "campaign_cancelled"
)

// Event is a single immutable journal entry.
type Event struct {
	ID          string          `json:"event_id"`
	Sequence    uint64          `json:"sequence"`
	Kind        Kind            `json:"kind"`
	CampaignID  uint64          `json:"campaign_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
	PayloadHash string          `json:"payload_hash"`
	PrevHash    string          `json:"prev_hash"`
	Hash        string          `json:"hash"`
}

// CampaignCreated is the payload for KindCampaignCreated.
type CampaignCreated struct {
	Creator      campaign.Principal `json:"creator"`
	CampaignType campaign.Type      `json:"campaign_type"`
	Asset        string             `json:"asset"`
	TargetAmount int64              `json:"target_amount"`
	EndTime      time.Time          `json:"end_time"`
	MetadataRef  string             `json:"metadata_ref"`
}

// DonationAccepted is the payload for KindDonationAccepted. Gross is
// what the donor paid, Net what the campaign kept after commission.
type DonationAccepted struct {
	Donor        campaign.Principal `json:"donor"`
	Gross        int64              `json:"gross"`
	Commission   int64              `json:"commission"`
	Net          int64              `json:"net"`
	RaisedAmount int64              `json:"raised_amount"`
	Completed    bool               `json:"completed"`
}

// RefundClaimed is the payload for KindRefundClaimed.
type RefundClaimed struct {
	Donor        campaign.Principal `json:"donor"`
	Gross        int64              `json:"gross"`
	Commission   int64              `json:"commission"`
	Net          int64              `json:"net"`
	RaisedAmount int64              `json:"raised_amount"`
	Status       campaign.Status    `json:"status"`
}

// ClosureInitiated is the payload for KindClosureInitiated.
type ClosureInitiated struct {
	Creator         campaign.Principal `json:"creator"`
	ReclaimDeadline time.Time          `json:"reclaim_deadline"`
}

// ClosureFinalized is the payload for KindClosureFinalized.
type ClosureFinalized struct {
	Creator campaign.Principal `json:"creator"`
	Amount  int64              `json:"amount"`
}

// CampaignFailed is the payload for KindCampaignFailed. Caller may be
// any principal; failing an expired campaign is permissionless.
type CampaignFailed struct {
	Caller       campaign.Principal `json:"caller"`
	RaisedAmount int64              `json:"raised_amount"`
	TargetAmount int64              `json:"target_amount"`
}

// FundsWithdrawn is the payload for KindFundsWithdrawn.
type FundsWithdrawn struct {
	Creator    campaign.Principal `json:"creator"`
	Gross      int64              `json:"gross"`
	Commission int64              `json:"commission"`
	Net        int64              `json:"net"`
}

// CampaignCancelled is the payload for KindCampaignCancelled.
type CampaignCancelled struct {
	Creator campaign.Principal `json:"creator"`
}
