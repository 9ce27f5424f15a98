package discord

import (
	"context"
	"fmt"
	"strings"

	"dealerbot/pkg/dealer"
)

// Decoder converts Discord update DTOs into neutral events.
type Decoder interface {
	// Decode maps one adapter update into a neutral event envelope.
	Decode(ctx context.Context, update Update) (*dealer.Event, error)
}

// DefaultDecoder maps application-command updates to interaction.created events.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts one update into an interaction.created event.
func (DefaultDecoder) Decode(_ context.Context, update Update) (*dealer.Event, error) {
	if strings.TrimSpace(update.ID) == "" {
		return nil, fmt.Errorf("decode update: missing interaction id")
	}
	if strings.TrimSpace(update.Token) == "" {
		return nil, fmt.Errorf("decode update %s: missing interaction token", update.ID)
	}
	if strings.TrimSpace(update.Command.Name) == "" {
		return nil, fmt.Errorf("decode update %s: missing command name", update.ID)
	}

	conversationType := dealer.ConversationTypeGuild
	if update.GuildID == "" {
		conversationType = dealer.ConversationTypeDirect
	}

	var options []dealer.CommandOption
	if len(update.Command.Options) > 0 {
		options = make([]dealer.CommandOption, 0, len(update.Command.Options))
		for _, option := range update.Command.Options {
			options = append(options, dealer.CommandOption{
				Name:  option.Name,
				Type:  option.Type,
				Value: option.Value,
			})
		}
	}

	var metadata map[string]string
	if update.Locale != "" {
		metadata = map[string]string{"locale": update.Locale}
	}

	return &dealer.Event{
		ID:         update.ID,
		Kind:       dealer.EventKindInteractionCreated,
		OccurredAt: update.OccurredAt,
		Platform:   DriverPlatform,
		Conversation: dealer.Conversation{
			ID:      update.ChannelID,
			Type:    conversationType,
			GuildID: update.GuildID,
		},
		Actor: dealer.Actor{
			ID:          update.Actor.ID,
			Username:    update.Actor.Username,
			DisplayName: update.Actor.DisplayName,
			IsBot:       update.Actor.IsBot,
		},
		Interaction: &dealer.Interaction{
			ID:            update.ID,
			ApplicationID: update.ApplicationID,
			Token:         update.Token,
			CommandName:   update.Command.Name,
			Options:       options,
		},
		Metadata: metadata,
	}, nil
}
