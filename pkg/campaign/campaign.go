// Package campaign defines the fund-custody domain model: campaigns,
// per-donor contribution records, and the status vocabulary of the
// lifecycle state machine. The package holds data and predicates only;
// all mutation goes through the lifecycle engine.
package campaign

import "time"

// Principal is an opaque authenticated identity. The custody core never
// interprets it; the platform edge is responsible for authentication.
type Principal string

// IsZero reports whether the principal is unset.
func (p Principal) IsZero() bool { return p == "" }

// Type selects the commission rate column for a campaign.
type Type string

const (
	TypeStartup Type = "startup"
	TypeCharity Type = "charity"
)

// Valid reports whether t is a known campaign type.
func (t Type) Valid() bool {
	return t == TypeStartup || t == TypeCharity
}

// Status is the lifecycle state of a campaign.
//
// Transitions: Active -> {Completed, Closing, Failed, Cancelled};
// Closing -> ClosedByCreator; Completed -> Withdrawn;
// Failed -> ClosedByCreator. A Completed campaign demotes back to
// Active when a refund drops it below target (refund-permissive mode).
type Status string

const (
	StatusActive          Status = "active"
	StatusCompleted       Status = "completed"
	StatusClosing         Status = "closing"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
	StatusWithdrawn       Status = "withdrawn"
	StatusClosedByCreator Status = "closed_by_creator"
)

// Terminal reports whether no further lifecycle operation may move the
// campaign out of this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusWithdrawn, StatusClosedByCreator, StatusCancelled:
		return true
	}
	return false
}

// Refundable reports whether donors may claim refunds in this status.
// Completed is handled separately: it is refundable only when the
// engine runs in refund-permissive mode.
func (s Status) Refundable() bool {
	switch s {
	case StatusActive, StatusClosing, StatusFailed:
		return true
	}
	return false
}

// Campaign is one fundraising effort. Amounts are integer minor units
// of the accepted asset. RaisedAmount is the net custodial balance and
// never goes negative; TotalEverRaised is the gross sum of all
// donations ever made and never decreases.
type Campaign struct {
	ID              uint64    `json:"id"`
	Creator         Principal `json:"creator"`
	Type            Type      `json:"campaign_type"`
	Asset           string    `json:"accepted_asset"`
	TargetAmount    int64     `json:"target_amount"`
	RaisedAmount    int64     `json:"raised_amount"`
	TotalEverRaised int64     `json:"total_ever_raised"`
	MetadataRef     string    `json:"metadata_ref"`
	EndTime         time.Time `json:"end_time"`
	Status          Status    `json:"status"`
	CreationTime    time.Time `json:"creation_time"`
	// ReclaimDeadline bounds the refund window of a Closing campaign
	// and gates the creator sweep of a Failed one. Zero until set.
	ReclaimDeadline time.Time `json:"reclaim_deadline"`
}

// Exists reports whether the record denotes a created campaign.
// CreationTime doubles as the existence sentinel.
func (c Campaign) Exists() bool { return !c.CreationTime.IsZero() }

// DonorRecord tracks one donor's position in one campaign.
// NetContributed is what the donor may still claim back; zero means
// nothing claimable. HasReclaimed is the pull-payment latch.
type DonorRecord struct {
	NetContributed int64 `json:"net_contributed"`
	HasReclaimed   bool  `json:"has_reclaimed"`
}

// Claimable reports whether the record holds a refundable position.
func (r DonorRecord) Claimable() bool {
	return r.NetContributed > 0 && !r.HasReclaimed
}
