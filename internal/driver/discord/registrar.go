package discord

import (
	"context"
	"fmt"
	"strings"

	"dealerbot/pkg/dealer"

	"github.com/bwmarrin/discordgo"
)

// commandSession is the subset of *discordgo.Session used for command registration.
type commandSession interface {
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)
}

// CommandRegistrar replaces the guild's application commands in one call.
type CommandRegistrar struct {
	session       commandSession
	applicationID string
	guildID       string
}

// NewCommandRegistrar creates a registrar for one application and guild.
func NewCommandRegistrar(session commandSession, applicationID string, guildID string) (*CommandRegistrar, error) {
	if session == nil {
		return nil, fmt.Errorf("new discord command registrar: nil session")
	}
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, fmt.Errorf("new discord command registrar: missing application id")
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("new discord command registrar: missing guild id")
	}

	return &CommandRegistrar{
		session:       session,
		applicationID: applicationID,
		guildID:       guildID,
	}, nil
}

// NewSessionRegistrar creates a REST-only registrar authenticated with a bot token.
func NewSessionRegistrar(token string, applicationID string, guildID string) (*CommandRegistrar, error) {
	session, err := newBotSession(token)
	if err != nil {
		return nil, fmt.Errorf("new discord session registrar: %w", err)
	}

	return NewCommandRegistrar(session, applicationID, guildID)
}

// BulkOverwrite submits commands as the complete guild command set and
// returns what the platform registered.
func (r *CommandRegistrar) BulkOverwrite(
	ctx context.Context,
	commands []*discordgo.ApplicationCommand,
) ([]*discordgo.ApplicationCommand, error) {
	if commands == nil {
		commands = []*discordgo.ApplicationCommand{}
	}

	registered, err := r.session.ApplicationCommandBulkOverwrite(
		r.applicationID,
		r.guildID,
		commands,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"bulk overwrite guild %s commands: %w",
			r.guildID,
			mapDiscordOutboundError(dealer.OutboundOperationRegisterCommands, dealer.EventSink{Platform: DriverPlatform}, err),
		)
	}

	return registered, nil
}

// ApplicationCommandFromSpec converts a neutral command spec into its wire form.
func ApplicationCommandFromSpec(spec dealer.CommandSpec) (*discordgo.ApplicationCommand, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("convert command %s: %w", spec.Name, err)
	}

	command := &discordgo.ApplicationCommand{
		Type:        discordgo.ChatApplicationCommand,
		Name:        dealer.NormalizeCommandName(spec.Name),
		Description: spec.Description,
	}
	for _, option := range spec.Options {
		optionType, err := platformOptionType(option.Type)
		if err != nil {
			return nil, fmt.Errorf("convert command %s option %s: %w", spec.Name, option.Name, err)
		}
		command.Options = append(command.Options, &discordgo.ApplicationCommandOption{
			Type:        optionType,
			Name:        option.Name,
			Description: option.Description,
			Required:    option.Required,
		})
	}

	return command, nil
}

func newBotSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("missing bot token")
	}
	token = strings.TrimPrefix(token, "Bot ")

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("new discordgo session: %w", err)
	}

	return session, nil
}
