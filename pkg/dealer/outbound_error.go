package dealer

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// OutboundOperation identifies one outbound dispatcher operation type.
type OutboundOperation string

const (
	// OutboundOperationDeferReply identifies DeferReply operations.
	OutboundOperationDeferReply OutboundOperation = "defer_reply"
	// OutboundOperationEditReply identifies EditReply operations.
	OutboundOperationEditReply OutboundOperation = "edit_reply"
	// OutboundOperationReply identifies Reply operations.
	OutboundOperationReply OutboundOperation = "reply"
	// OutboundOperationRegisterCommands identifies guild command registration.
	OutboundOperationRegisterCommands OutboundOperation = "register_commands"
)

// OutboundErrorKind describes coarse-grained outbound failure classification.
type OutboundErrorKind string

const (
	// OutboundErrorKindRateLimited indicates platform-side rate limiting.
	OutboundErrorKindRateLimited OutboundErrorKind = "rate_limited"
	// OutboundErrorKindTemporary indicates retryable transient failure.
	OutboundErrorKindTemporary OutboundErrorKind = "temporary"
	// OutboundErrorKindPermanent indicates non-retryable permanent failure.
	OutboundErrorKindPermanent OutboundErrorKind = "permanent"
	// OutboundErrorKindExpired indicates the interaction token is no longer
	// valid, so nothing more can be sent for that interaction.
	OutboundErrorKindExpired OutboundErrorKind = "expired"
	// OutboundErrorKindUnknown indicates unclassified failure.
	OutboundErrorKindUnknown OutboundErrorKind = "unknown"
)

// OutboundError carries structured metadata for one outbound operation failure.
type OutboundError struct {
	// Operation identifies which outbound operation failed.
	Operation OutboundOperation
	// Kind classifies whether and how callers should retry.
	Kind OutboundErrorKind
	// Platform identifies which destination platform produced the failure.
	Platform Platform
	// SinkID identifies which configured sink produced the failure when known.
	SinkID string
	// RetryAfter carries suggested retry delay for rate-limited failures when known.
	RetryAfter time.Duration
	// Code carries the HTTP status when known.
	Code int
	// APICode carries the platform's JSON error code when known.
	APICode int
	// Type carries optional platform error message when known.
	Type string
	// Cause is the wrapped platform/transport error.
	Cause error
}

// Error returns one operator-readable failure summary.
func (e *OutboundError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var summary strings.Builder
	summary.WriteString("outbound error")
	separator := ": "
	field := func(key string, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		summary.WriteString(separator)
		summary.WriteString(key)
		summary.WriteString("=")
		summary.WriteString(value)
		separator = " "
	}

	field("operation", string(e.Operation))
	field("kind", string(e.Kind))
	field("platform", string(e.Platform))
	field("sink_id", e.SinkID)
	if e.RetryAfter > 0 {
		field("retry_after", e.RetryAfter.String())
	}
	if e.Code != 0 {
		field("code", strconv.Itoa(e.Code))
	}
	if e.APICode != 0 {
		field("api_code", strconv.Itoa(e.APICode))
	}
	field("type", e.Type)

	if e.Cause != nil {
		summary.WriteString(": ")
		summary.WriteString(e.Cause.Error())
	}

	return summary.String()
}

// Unwrap returns the wrapped root cause.
func (e *OutboundError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Cause
}

// AsOutboundError extracts one OutboundError from wrapped error chains.
func AsOutboundError(err error) (*OutboundError, bool) {
	if err == nil {
		return nil, false
	}

	var outboundErr *OutboundError
	if errors.As(err, &outboundErr) {
		return outboundErr, true
	}

	return nil, false
}

// AsOutboundRateLimit extracts retry delay metadata from outbound rate-limit errors.
//
// It returns `(0, false)` if err is not classified as rate-limited.
// It returns `(0, true)` when rate-limited but no retry-after hint is known.
func AsOutboundRateLimit(err error) (time.Duration, bool) {
	outboundErr, ok := AsOutboundError(err)
	if !ok || outboundErr == nil || outboundErr.Kind != OutboundErrorKindRateLimited {
		return 0, false
	}

	return outboundErr.RetryAfter, true
}

// IsOutboundExpired reports whether err means the interaction can no longer
// be answered.
func IsOutboundExpired(err error) bool {
	outboundErr, ok := AsOutboundError(err)

	return ok && outboundErr != nil && outboundErr.Kind == OutboundErrorKindExpired
}
