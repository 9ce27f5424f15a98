package dealer

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindInteractionCreated is emitted when a user invokes an application command.
	EventKindInteractionCreated EventKind = "interaction.created"
	// EventKindCommandReceived is derived by the kernel once an interaction binds
	// to a registered command spec.
	EventKindCommandReceived EventKind = "command.received"
)

// Platform identifies an external chat platform source.
type Platform string

const (
	// PlatformDiscord is Discord.
	PlatformDiscord Platform = "discord"
)

// ConversationType identifies conversation scope.
type ConversationType string

const (
	// ConversationTypeGuild is a channel inside a guild.
	ConversationTypeGuild ConversationType = "guild"
	// ConversationTypeDirect is a direct message channel.
	ConversationTypeDirect ConversationType = "direct"
)

// EventSource identifies which driver instance produced an event.
type EventSource struct {
	// Platform is the upstream platform.
	Platform Platform
	// ID is the configured driver instance name.
	ID string
}

// EventSink identifies which driver instance should receive outbound operations.
type EventSink struct {
	// Platform is the destination platform.
	Platform Platform
	// ID is the configured driver instance name.
	ID string
}

// Event is the neutral protocol envelope that all drivers publish and modules consume.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the source-platform timestamp for the event.
	OccurredAt time.Time
	// Platform identifies the upstream platform that produced the event.
	Platform Platform
	// Source identifies the driver instance that produced the event.
	Source EventSource
	// Conversation identifies where the event happened.
	Conversation Conversation
	// Actor identifies who initiated the event when available.
	Actor Actor
	// Interaction carries the reply handle for interaction-driven events.
	Interaction *Interaction
	// Command carries the bound invocation for command.received events.
	Command *CommandInvocation
	// Metadata stores optional driver-provided key/value context.
	Metadata map[string]string
}

// Conversation identifies the neutral destination where an event occurred.
type Conversation struct {
	// ID is the channel identifier on the source platform.
	ID string
	// Type describes the conversation scope.
	Type ConversationType
	// GuildID identifies the guild owning the channel, empty for direct messages.
	GuildID string
}

// Actor identifies the user/account that initiated an event.
type Actor struct {
	// ID is the stable actor identifier on the source platform.
	ID string
	// Username is the platform handle when available.
	Username string
	// DisplayName is the human-readable actor name.
	DisplayName string
	// IsBot reports whether the actor is an automated account.
	IsBot bool
}

// Interaction is the handle for one inbound command invocation.
//
// ID and Token are what a driver needs to acknowledge and later edit the reply.
type Interaction struct {
	// ID is the platform interaction identifier.
	ID string
	// ApplicationID identifies the bot application that received the interaction.
	ApplicationID string
	// Token authorizes follow-up responses for this interaction.
	Token string
	// CommandName is the invoked command name as sent by the platform.
	CommandName string
	// Options carries raw option values as sent by the platform.
	Options []CommandOption
}

// Validate checks event envelope and payload coherence.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	return validatePayloadByKind(e)
}

// validatePayloadByKind enforces payload branch requirements for each event kind.
func validatePayloadByKind(e *Event) error {
	switch e.Kind {
	case EventKindInteractionCreated:
		if err := validateInteraction(e.Interaction); err != nil {
			return err
		}
	case EventKindCommandReceived:
		if err := validateInteraction(e.Interaction); err != nil {
			return err
		}
		if e.Command == nil {
			return fmt.Errorf("%w: command.received requires command payload", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}

func validateInteraction(interaction *Interaction) error {
	if interaction == nil {
		return fmt.Errorf("%w: interaction payload required", ErrInvalidEvent)
	}
	if interaction.ID == "" {
		return fmt.Errorf("%w: missing interaction id", ErrInvalidEvent)
	}
	if interaction.Token == "" {
		return fmt.Errorf("%w: missing interaction token", ErrInvalidEvent)
	}
	if interaction.CommandName == "" {
		return fmt.Errorf("%w: missing interaction command name", ErrInvalidEvent)
	}

	return nil
}
