package discord

import (
	"time"

	"dealerbot/pkg/dealer"
)

// Update is the adapter's internal DTO for one application-command
// interaction, before neutral decoding.
type Update struct {
	ID            string
	ApplicationID string
	Token         string
	OccurredAt    time.Time
	GuildID       string
	ChannelID     string
	Actor         ActorRef
	Command       CommandPayload
	Locale        string
}

// ActorRef identifies the invoking Discord user.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// CommandPayload carries the invoked command name and flattened option values.
type CommandPayload struct {
	Name    string
	Options []OptionPayload
}

// OptionPayload is one option value rendered as text.
type OptionPayload struct {
	Name  string
	Type  dealer.CommandOptionType
	Value string
}
