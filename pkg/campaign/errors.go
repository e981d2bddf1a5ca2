package campaign

import "errors"

// Lifecycle operation failures. Each distinct cause gets its own
// sentinel so callers can classify with errors.Is; operations report
// the first failing precondition in declaration order.

// Creation failures.
var (
	ErrInvalidTarget    = errors.New("campaign: target amount must be positive")
	ErrInvalidDeadline  = errors.New("campaign: end time must be in the future")
	ErrEmptyMetadata    = errors.New("campaign: metadata reference must not be empty")
	ErrAssetNotAllowed  = errors.New("campaign: asset is not whitelisted")
	ErrNoCommissionSink = errors.New("campaign: commission sink is not configured")
)

// Donation failures.
var (
	ErrNotActive                 = errors.New("campaign: campaign is not active")
	ErrExpired                   = errors.New("campaign: campaign deadline has passed")
	ErrZeroAmount                = errors.New("campaign: amount must be positive")
	ErrInsufficientAuthorization = errors.New("campaign: donor authorization does not cover the amount")
)

// Refund failures.
var (
	ErrNotRefundable       = errors.New("campaign: status does not permit refunds")
	ErrReclaimWindowClosed = errors.New("campaign: reclaim window has closed")
	ErrNoContribution      = errors.New("campaign: donor has no claimable contribution")
	ErrAlreadyReclaimed    = errors.New("campaign: donor has already reclaimed")
)

// Closure, failure, withdrawal and cancellation failures.
var (
	ErrNotCreator       = errors.New("campaign: caller is not the campaign creator")
	ErrAlreadyCompleted = errors.New("campaign: campaign already reached its target")
	ErrNotClosing       = errors.New("campaign: campaign is not closing")
	ErrWindowStillOpen  = errors.New("campaign: reclaim window is still open")
	ErrNotYetEnded      = errors.New("campaign: campaign deadline has not passed")
	ErrTargetWasMet     = errors.New("campaign: target was met")
	ErrNotCompleted     = errors.New("campaign: campaign is not completed")
	ErrHasDonations     = errors.New("campaign: campaign still holds donations")
	ErrNotCancellable   = errors.New("campaign: terminal campaign cannot be cancelled")
)

// Cross-cutting failures.
var (
	ErrPaused         = errors.New("campaign: custody operations are paused")
	ErrTransferFailed = errors.New("campaign: value transfer failed")
)
