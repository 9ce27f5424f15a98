package dealer

import (
	"context"
	"fmt"
)

// ServiceSinkDispatcher is the canonical service registry key for outbound replies.
const ServiceSinkDispatcher = "dealer.sink_dispatcher"

// SinkDispatcher sends neutral interaction replies to one sink adapter.
//
// Implementations should enforce platform-specific constraints while preserving
// these protocol-level request semantics.
type SinkDispatcher interface {
	// DeferReply acknowledges an interaction and promises a later EditReply.
	DeferReply(ctx context.Context, request DeferReplyRequest) error
	// EditReply replaces the content of a previously deferred reply.
	EditReply(ctx context.Context, request EditReplyRequest) error
	// Reply answers an interaction immediately with final content.
	Reply(ctx context.Context, request ReplyRequest) error
}

// InteractionRef identifies the interaction an outbound operation answers.
type InteractionRef struct {
	// ID is the platform interaction identifier.
	ID string
	// ApplicationID identifies the bot application owning the interaction.
	ApplicationID string
	// Token authorizes responses for the interaction.
	Token string
}

// OutboundTarget identifies where an outbound operation should be delivered.
type OutboundTarget struct {
	// Interaction identifies the interaction being answered.
	Interaction InteractionRef
	// Sink optionally overrides runtime-configured sink routing for this operation.
	Sink *EventSink
}

// Validate checks target identity fields used for outbound routing.
func (t OutboundTarget) Validate() error {
	if t.Interaction.ID == "" {
		return fmt.Errorf("%w: missing interaction id", ErrInvalidOutboundRequest)
	}
	if t.Interaction.Token == "" {
		return fmt.Errorf("%w: missing interaction token", ErrInvalidOutboundRequest)
	}
	if t.Sink != nil {
		if t.Sink.Platform == "" && t.Sink.ID == "" {
			return fmt.Errorf("%w: missing sink identity", ErrInvalidOutboundRequest)
		}
	}

	return nil
}

// OutboundTargetFromEvent derives a reply target from an inbound event.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}
	if event.Interaction == nil {
		return OutboundTarget{}, fmt.Errorf("%w: event %s has no interaction", ErrInvalidOutboundRequest, event.Kind)
	}
	sourcePlatform := event.Source.Platform
	if sourcePlatform == "" {
		sourcePlatform = event.Platform
	}
	target := OutboundTarget{
		Interaction: InteractionRef{
			ID:            event.Interaction.ID,
			ApplicationID: event.Interaction.ApplicationID,
			Token:         event.Interaction.Token,
		},
	}
	if sourcePlatform != "" || event.Source.ID != "" {
		target.Sink = &EventSink{
			Platform: sourcePlatform,
			ID:       event.Source.ID,
		}
	}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// DeferReplyRequest acknowledges an interaction before its content is ready.
type DeferReplyRequest struct {
	// Target identifies the interaction.
	Target OutboundTarget
	// Ephemeral limits visibility of the eventual reply to the invoking user.
	Ephemeral bool
}

// Validate checks the request envelope before dispatch.
func (r DeferReplyRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate defer reply target: %w", err)
	}

	return nil
}

// EditReplyRequest replaces the content of a deferred reply.
type EditReplyRequest struct {
	// Target identifies the interaction.
	Target OutboundTarget
	// Text is the replacement message body.
	Text string
}

// Validate checks the request envelope before dispatch.
func (r EditReplyRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate edit reply target: %w", err)
	}
	if r.Target.Interaction.ApplicationID == "" {
		return fmt.Errorf("%w: missing application id", ErrInvalidOutboundRequest)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing reply text", ErrInvalidOutboundRequest)
	}

	return nil
}

// ReplyRequest answers an interaction immediately.
type ReplyRequest struct {
	// Target identifies the interaction.
	Target OutboundTarget
	// Text is the message body.
	Text string
	// Ephemeral limits visibility to the invoking user.
	Ephemeral bool
}

// Validate checks the request envelope before dispatch.
func (r ReplyRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate reply target: %w", err)
	}
	if r.Text == "" {
		return fmt.Errorf("%w: missing reply text", ErrInvalidOutboundRequest)
	}

	return nil
}
