// Package commission implements the platform commission policy: pure
// basis-point rate arithmetic over integer minor units. Rates are
// applied with truncating division so a commission can never exceed
// the stated rate; rounding dust stays with the campaign or donor.
package commission

import (
	"errors"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

// Denominator is the basis-point scale: 10000 bps = 100%.
const Denominator = 10_000

var (
	// ErrInvalidRate rejects rates outside [0, Denominator].
	ErrInvalidRate = errors.New("commission: rate must be between 0 and 10000 basis points")
	// ErrUnknownType means no rate column exists for the campaign type.
	ErrUnknownType = errors.New("commission: no rate configured for campaign type")
)

// Rate is a commission rate in basis points.
type Rate int64

// Valid reports whether the rate lies in [0, Denominator].
func (r Rate) Valid() bool { return r >= 0 && r <= Denominator }

// Apply splits a non-negative amount into the remainder and the
// commission floor(amount*r/Denominator). The quotient/remainder split
// keeps the product inside int64 for every amount and valid rate.
func (r Rate) Apply(amount int64) (remainder, fee int64) {
	q, s := amount/Denominator, amount%Denominator
	fee = q*int64(r) + s*int64(r)/Denominator
	return amount - fee, fee
}

// Policy is the rate table in force for one lifecycle operation.
// Configuration copies one out at operation start; a Policy is
// immutable and safe to share.
type Policy struct {
	donation map[campaign.Type]Rate
	refund   Rate
	success  map[campaign.Type]Rate
}

// NewPolicy validates every rate and returns an immutable policy.
// Donation and success tables must carry a rate per campaign type.
func NewPolicy(donation map[campaign.Type]Rate, refund Rate, success map[campaign.Type]Rate) (Policy, error) {
	if !refund.Valid() {
		return Policy{}, ErrInvalidRate
	}
	d := make(map[campaign.Type]Rate, len(donation))
	for t, r := range donation {
		if !r.Valid() {
			return Policy{}, ErrInvalidRate
		}
		d[t] = r
	}
	s := make(map[campaign.Type]Rate, len(success))
	for t, r := range success {
		if !r.Valid() {
			return Policy{}, ErrInvalidRate
		}
		s[t] = r
	}
	return Policy{donation: d, refund: refund, success: s}, nil
}

// Donation computes the split of a gross donation: net credited to the
// campaign and the commission forwarded to the sink.
func (p Policy) Donation(t campaign.Type, gross int64) (net, fee int64, err error) {
	r, ok := p.donation[t]
	if !ok {
		return 0, 0, ErrUnknownType
	}
	net, fee = r.Apply(gross)
	return net, fee, nil
}

// Refund computes the split of a refund: the amount returned to the
// donor and the commission retained. Callers waive the commission for
// failed campaigns by not consulting the policy at all.
func (p Policy) Refund(amount int64) (toDonor, fee int64) {
	return p.refund.Apply(amount)
}

// Success computes the split of a success withdrawal: the amount paid
// to the creator and the commission forwarded to the sink.
func (p Policy) Success(t campaign.Type, raised int64) (toCreator, fee int64, err error) {
	r, ok := p.success[t]
	if !ok {
		return 0, 0, ErrUnknownType
	}
	toCreator, fee = r.Apply(raised)
	return toCreator, fee, nil
}

// RefundRate exposes the configured refund rate for reporting surfaces.
func (p Policy) RefundRate() Rate { return p.refund }

// DonationRate returns the donation rate for a type, or false when the
// type has no column.
func (p Policy) DonationRate(t campaign.Type) (Rate, bool) {
	r, ok := p.donation[t]
	return r, ok
}

// SuccessRate returns the success rate for a type, or false when the
// type has no column.
func (p Policy) SuccessRate(t campaign.Type) (Rate, bool) {
	r, ok := p.success[t]
	return r, ok
}
