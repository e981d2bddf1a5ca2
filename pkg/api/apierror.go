// Package api exposes the custody engine over HTTP. Error responses
// use RFC 7807 problem details; every engine failure maps to a stable
// status code so clients can classify without parsing messages.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Tessera-Labs/coffer/pkg/admission"
	"github.com/Tessera-Labs/coffer/pkg/campaign"
	"github.com/Tessera-Labs/coffer/pkg/commission"
	"github.com/Tessera-Labs/coffer/pkg/config"
	"github.com/Tessera-Labs/coffer/pkg/engine"
	"github.com/Tessera-Labs/coffer/pkg/guard"
	"github.com/Tessera-Labs/coffer/pkg/ledger"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteProblem writes an RFC 7807 problem detail response.
func WriteProblem(w http.ResponseWriter, status int, title, detail string) {
	problem := &ProblemDetail{
		Type:   fmt.Sprintf("https://coffer.tessera.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteProblem(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteForbidden writes a 403 response.
func WriteForbidden(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Insufficient permissions"
	}
	WriteProblem(w, http.StatusForbidden, "Forbidden", detail)
}

// WriteNotFound writes a 404 response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteProblem(w, http.StatusNotFound, "Not Found", detail)
}

// WriteMethodNotAllowed writes a 405 response.
func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteProblem(w, http.StatusMethodNotAllowed, "Method Not Allowed",
		"The HTTP method is not supported for this endpoint")
}

// WriteTooManyRequests writes a 429 response with a Retry-After hint.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteProblem(w, http.StatusTooManyRequests, "Too Many Requests",
		"Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 response. The error is logged, never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, logger *slog.Logger, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("internal server error", "error", err)
	WriteProblem(w, http.StatusInternalServerError, "Internal Server Error",
		"An unexpected error occurred. Please try again later.")
}

// statusFor classifies a lifecycle failure. Validation failures are
// 400, authority failures 403, lifecycle-state conflicts 409, donor
// authorization shortfalls 402, throttling 429, operational outages
// 502/503.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, campaign.ErrInvalidTarget),
		errors.Is(err, campaign.ErrInvalidDeadline),
		errors.Is(err, campaign.ErrEmptyMetadata),
		errors.Is(err, campaign.ErrAssetNotAllowed),
		errors.Is(err, campaign.ErrZeroAmount),
		errors.Is(err, commission.ErrUnknownType),
		errors.Is(err, commission.ErrInvalidRate):
		return http.StatusBadRequest, "Bad Request"
	case errors.Is(err, campaign.ErrNotCreator),
		errors.Is(err, admission.ErrDenied),
		errors.Is(err, config.ErrNotOwner):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "Not Found"
	case errors.Is(err, campaign.ErrInsufficientAuthorization):
		return http.StatusPaymentRequired, "Payment Required"
	case errors.Is(err, guard.ErrThrottled):
		return http.StatusTooManyRequests, "Too Many Requests"
	case errors.Is(err, engine.ErrReentrant),
		errors.Is(err, campaign.ErrNotActive),
		errors.Is(err, campaign.ErrExpired),
		errors.Is(err, campaign.ErrNotRefundable),
		errors.Is(err, campaign.ErrReclaimWindowClosed),
		errors.Is(err, campaign.ErrNoContribution),
		errors.Is(err, campaign.ErrAlreadyReclaimed),
		errors.Is(err, campaign.ErrAlreadyCompleted),
		errors.Is(err, campaign.ErrNotClosing),
		errors.Is(err, campaign.ErrWindowStillOpen),
		errors.Is(err, campaign.ErrNotYetEnded),
		errors.Is(err, campaign.ErrTargetWasMet),
		errors.Is(err, campaign.ErrNotCompleted),
		errors.Is(err, campaign.ErrHasDonations),
		errors.Is(err, campaign.ErrNotCancellable):
		return http.StatusConflict, "Conflict"
	case errors.Is(err, campaign.ErrTransferFailed):
		return http.StatusBadGateway, "Bad Gateway"
	case errors.Is(err, campaign.ErrPaused),
		errors.Is(err, campaign.ErrNoCommissionSink):
		return http.StatusServiceUnavailable, "Service Unavailable"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

// writeEngineError maps a typed engine failure onto the wire.
func writeEngineError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, title := statusFor(err)
	if status == http.StatusInternalServerError {
		WriteInternal(w, logger, err)
		return
	}
	WriteProblem(w, status, title, err.Error())
}
