package discord

import (
	"fmt"
	"strconv"
	"time"

	"dealerbot/pkg/dealer"

	"github.com/bwmarrin/discordgo"
)

// mapInteraction converts a gateway interaction into an adapter Update.
// Only application-command interactions are accepted; the rest are skipped.
func mapInteraction(interaction *discordgo.Interaction, receivedAt time.Time) (Update, bool, error) {
	if interaction == nil {
		return Update{}, false, fmt.Errorf("map interaction: nil interaction")
	}
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return Update{}, false, nil
	}

	data := interaction.ApplicationCommandData()
	options, err := mapOptions(data.Options)
	if err != nil {
		return Update{}, false, fmt.Errorf("map interaction %s command %s: %w", interaction.ID, data.Name, err)
	}

	occurredAt, err := discordgo.SnowflakeTimestamp(interaction.ID)
	if err != nil || occurredAt.IsZero() {
		occurredAt = receivedAt
	}

	return Update{
		ID:            interaction.ID,
		ApplicationID: interaction.AppID,
		Token:         interaction.Token,
		OccurredAt:    occurredAt.UTC(),
		GuildID:       interaction.GuildID,
		ChannelID:     interaction.ChannelID,
		Actor:         mapActor(interaction),
		Command: CommandPayload{
			Name:    data.Name,
			Options: options,
		},
		Locale: string(interaction.Locale),
	}, true, nil
}

// mapActor prefers the guild member's user, falling back to the DM user.
func mapActor(interaction *discordgo.Interaction) ActorRef {
	var (
		user *discordgo.User
		nick string
	)
	if interaction.Member != nil {
		user = interaction.Member.User
		nick = interaction.Member.Nick
	}
	if user == nil {
		user = interaction.User
	}
	if user == nil {
		return ActorRef{}
	}

	displayName := nick
	if displayName == "" {
		displayName = user.GlobalName
	}
	if displayName == "" {
		displayName = user.Username
	}

	return ActorRef{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: displayName,
		IsBot:       user.Bot,
	}
}

func mapOptions(raw []*discordgo.ApplicationCommandInteractionDataOption) ([]OptionPayload, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	options := make([]OptionPayload, 0, len(raw))
	for _, option := range raw {
		if option == nil {
			continue
		}
		optionType, err := neutralOptionType(option.Type)
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", option.Name, err)
		}
		options = append(options, OptionPayload{
			Name:  option.Name,
			Type:  optionType,
			Value: formatOptionValue(option.Value),
		})
	}

	return options, nil
}

func formatOptionValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

var neutralOptionTypes = map[discordgo.ApplicationCommandOptionType]dealer.CommandOptionType{
	discordgo.ApplicationCommandOptionString:     dealer.CommandOptionString,
	discordgo.ApplicationCommandOptionInteger:    dealer.CommandOptionInteger,
	discordgo.ApplicationCommandOptionNumber:     dealer.CommandOptionNumber,
	discordgo.ApplicationCommandOptionBoolean:    dealer.CommandOptionBoolean,
	discordgo.ApplicationCommandOptionUser:       dealer.CommandOptionUser,
	discordgo.ApplicationCommandOptionChannel:    dealer.CommandOptionChannel,
	discordgo.ApplicationCommandOptionRole:       dealer.CommandOptionRole,
	discordgo.ApplicationCommandOptionAttachment: dealer.CommandOptionAttachment,
}

func neutralOptionType(optionType discordgo.ApplicationCommandOptionType) (dealer.CommandOptionType, error) {
	neutral, ok := neutralOptionTypes[optionType]
	if !ok {
		return "", fmt.Errorf("unsupported option type %v", optionType)
	}

	return neutral, nil
}

func platformOptionType(optionType dealer.CommandOptionType) (discordgo.ApplicationCommandOptionType, error) {
	for platformType, neutral := range neutralOptionTypes {
		if neutral == optionType {
			return platformType, nil
		}
	}

	return 0, fmt.Errorf("unsupported option type %q", optionType)
}
