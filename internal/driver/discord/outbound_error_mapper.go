package discord

import (
	"errors"
	"net/http"

	"dealerbot/pkg/dealer"

	"github.com/bwmarrin/discordgo"
)

// JSON error codes Discord returns once an interaction token is unusable.
const (
	apiCodeUnknownWebhook      = 10015
	apiCodeUnknownInteraction  = 10062
	apiCodeInvalidWebhookToken = 50027
)

// mapDiscordOutboundError wraps a REST failure into *dealer.OutboundError.
func mapDiscordOutboundError(operation dealer.OutboundOperation, sink dealer.EventSink, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, dealer.ErrInvalidOutboundRequest) {
		return err
	}

	outboundErr := &dealer.OutboundError{
		Operation: operation,
		Kind:      dealer.OutboundErrorKindUnknown,
		Platform:  sink.Platform,
		SinkID:    sink.ID,
		Cause:     err,
	}

	if rateLimit, ok := asRateLimitError(err); ok {
		outboundErr.Kind = dealer.OutboundErrorKindRateLimited
		outboundErr.Code = http.StatusTooManyRequests
		if rateLimit.RateLimit != nil && rateLimit.TooManyRequests != nil {
			outboundErr.RetryAfter = rateLimit.RetryAfter
			outboundErr.Type = rateLimit.Message
		}

		return outboundErr
	}

	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr == nil {
		return outboundErr
	}

	if restErr.Response != nil {
		outboundErr.Code = restErr.Response.StatusCode
	}
	if restErr.Message != nil {
		outboundErr.APICode = restErr.Message.Code
		outboundErr.Type = restErr.Message.Message
	}
	outboundErr.Kind = classifyStatusCode(outboundErr.Code)
	if isExpiredInteraction(operation, outboundErr.APICode) {
		outboundErr.Kind = dealer.OutboundErrorKindExpired
	}

	return outboundErr
}

// asRateLimitError finds the error discordgo returns when it is told not to
// retry rate-limited requests itself.
func asRateLimitError(err error) (discordgo.RateLimitError, bool) {
	var rateLimit *discordgo.RateLimitError
	if errors.As(err, &rateLimit) && rateLimit != nil {
		return *rateLimit, true
	}

	return discordgo.RateLimitError{}, false
}

// isExpiredInteraction reports whether a follow-up on an interaction token
// failed because the token is gone. Registration shares none of these codes.
func isExpiredInteraction(operation dealer.OutboundOperation, apiCode int) bool {
	if operation == dealer.OutboundOperationRegisterCommands {
		return false
	}
	switch apiCode {
	case apiCodeUnknownWebhook, apiCodeUnknownInteraction, apiCodeInvalidWebhookToken:
		return true
	default:
		return false
	}
}

func classifyStatusCode(code int) dealer.OutboundErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return dealer.OutboundErrorKindRateLimited
	case code >= http.StatusInternalServerError:
		return dealer.OutboundErrorKindTemporary
	case code == http.StatusRequestTimeout:
		return dealer.OutboundErrorKindTemporary
	case code >= http.StatusBadRequest:
		return dealer.OutboundErrorKindPermanent
	default:
		return dealer.OutboundErrorKindUnknown
	}
}
