// Package gateway defines the value-transfer capability the custody
// core instructs. The core decides how much moves, to whom, and in
// what order relative to ledger effects; executing the movement is the
// platform's job behind this interface.
package gateway

import (
	"context"
	"errors"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

var (
	// ErrRefused is the generic transfer failure.
	ErrRefused = errors.New("gateway: transfer refused")
	// ErrInsufficientAuthorization means a pull exceeded what the payer
	// pre-authorized.
	ErrInsufficientAuthorization = errors.New("gateway: pull exceeds authorized amount")
)

// Kind distinguishes the two instruction directions.
type Kind string

const (
	// KindPull draws funds from a party into custody.
	KindPull Kind = "pull"
	// KindPush pays funds out of custody to a party.
	KindPush Kind = "push"
)

// Instruction is one value movement. Party is the source of a pull or
// the destination of a push. Memo tags the movement for observers.
type Instruction struct {
	Kind   Kind               `json:"kind"`
	Party  campaign.Principal `json:"party"`
	Amount int64              `json:"amount"`
	Asset  string             `json:"asset"`
	Memo   string             `json:"memo"`
}

// Pull builds an instruction drawing amount from a party.
func Pull(from campaign.Principal, amount int64, asset, memo string) Instruction {
	return Instruction{Kind: KindPull, Party: from, Amount: amount, Asset: asset, Memo: memo}
}

// Push builds an instruction paying amount out to a party.
func Push(to campaign.Principal, amount int64, asset, memo string) Instruction {
	return Instruction{Kind: KindPush, Party: to, Amount: amount, Asset: asset, Memo: memo}
}

// Batch carries all instructions of one lifecycle operation.
type Batch struct {
	CampaignID   uint64        `json:"campaign_id"`
	Instructions []Instruction `json:"instructions"`
}

// Gateway executes one operation's value movements. Execute applies
// the whole batch atomically: either every instruction settles or none
// do. A non-nil error means nothing moved, and the caller must treat
// the enclosing operation as failed.
type Gateway interface {
	Execute(ctx context.Context, batch Batch) error
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, batch Batch) error

// Execute implements Gateway.
func (f Func) Execute(ctx context.Context, batch Batch) error { return f(ctx, batch) }
