package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dealerbot/pkg/dealer"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultOutboundTimeout = 3 * time.Second
	// MaxMessageLength is Discord's per-message content limit in characters.
	MaxMessageLength = 2000

	blankContentFence = "```"
)

// interactionSession is the subset of *discordgo.Session used for replies.
type interactionSession interface {
	InteractionRespond(
		interaction *discordgo.Interaction,
		response *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		edit *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// OutboundOption mutates outbound dispatcher configuration.
type OutboundOption func(*outboundConfig)

type outboundConfig struct {
	requestTimeout time.Duration
	logger         *slog.Logger
	sink           dealer.EventSink
}

// WithOutboundTimeout bounds each outbound REST call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.requestTimeout = timeout
		}
	}
}

// WithOutboundLogger configures structured logging for outbound operations.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// WithSinkRef configures the sink identity attached to outbound errors.
func WithSinkRef(ref dealer.EventSink) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.sink = ref
		if cfg.sink.Platform == "" {
			cfg.sink.Platform = DriverPlatform
		}
	}
}

// SinkDispatcher answers Discord interactions.
type SinkDispatcher struct {
	cfg     outboundConfig
	session interactionSession
}

// NewOutboundDispatcher creates a Discord outbound dispatcher.
func NewOutboundDispatcher(session interactionSession, options ...OutboundOption) (*SinkDispatcher, error) {
	if session == nil {
		return nil, fmt.Errorf("new discord outbound dispatcher: nil session")
	}

	cfg := outboundConfig{
		requestTimeout: defaultOutboundTimeout,
		sink:           dealer.EventSink{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &SinkDispatcher{cfg: cfg, session: session}, nil
}

// DeferReply acknowledges the interaction with a deferred channel message.
func (d *SinkDispatcher) DeferReply(ctx context.Context, request dealer.DeferReplyRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("defer reply validate: %w", err)
	}
	if err := d.checkPlatform(request.Target); err != nil {
		return fmt.Errorf("defer reply: %w", err)
	}

	response := &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if request.Ephemeral {
		response.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}

	requestCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	err := d.session.InteractionRespond(toInteraction(request.Target), response, discordgo.WithContext(requestCtx))
	if err != nil {
		return fmt.Errorf(
			"defer reply to interaction %s: %w",
			request.Target.Interaction.ID,
			mapDiscordOutboundError(dealer.OutboundOperationDeferReply, d.cfg.sink, err),
		)
	}

	d.logOutbound(ctx, "defer_reply", "interaction_id", request.Target.Interaction.ID, "ephemeral", request.Ephemeral)

	return nil
}

// EditReply replaces the deferred reply content. Content over the message
// limit is truncated, and whitespace-only content is sent inside a code block
// because Discord rejects blank messages.
func (d *SinkDispatcher) EditReply(ctx context.Context, request dealer.EditReplyRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("edit reply validate: %w", err)
	}
	if err := d.checkPlatform(request.Target); err != nil {
		return fmt.Errorf("edit reply: %w", err)
	}

	content, truncated := messageContent(request.Text)

	requestCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	_, err := d.session.InteractionResponseEdit(
		toInteraction(request.Target),
		&discordgo.WebhookEdit{Content: &content},
		discordgo.WithContext(requestCtx),
	)
	if err != nil {
		return fmt.Errorf(
			"edit reply to interaction %s: %w",
			request.Target.Interaction.ID,
			mapDiscordOutboundError(dealer.OutboundOperationEditReply, d.cfg.sink, err),
		)
	}

	d.logOutbound(ctx, "edit_reply",
		"interaction_id", request.Target.Interaction.ID,
		"length", len([]rune(content)),
		"truncated", truncated,
	)

	return nil
}

// Reply answers the interaction immediately with a channel message.
func (d *SinkDispatcher) Reply(ctx context.Context, request dealer.ReplyRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("reply validate: %w", err)
	}
	if err := d.checkPlatform(request.Target); err != nil {
		return fmt.Errorf("reply: %w", err)
	}

	content, truncated := messageContent(request.Text)
	data := &discordgo.InteractionResponseData{Content: content}
	if request.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	requestCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	err := d.session.InteractionRespond(toInteraction(request.Target), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(requestCtx))
	if err != nil {
		return fmt.Errorf(
			"reply to interaction %s: %w",
			request.Target.Interaction.ID,
			mapDiscordOutboundError(dealer.OutboundOperationReply, d.cfg.sink, err),
		)
	}

	d.logOutbound(ctx, "reply",
		"interaction_id", request.Target.Interaction.ID,
		"ephemeral", request.Ephemeral,
		"truncated", truncated,
	)

	return nil
}

func (d *SinkDispatcher) checkPlatform(target dealer.OutboundTarget) error {
	if target.Sink != nil && target.Sink.Platform != "" && target.Sink.Platform != DriverPlatform {
		return fmt.Errorf("%w: platform %s", dealer.ErrOutboundUnsupported, target.Sink.Platform)
	}

	return nil
}

func (d *SinkDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.cfg.requestTimeout)
}

func (d *SinkDispatcher) logOutbound(ctx context.Context, operation string, attrs ...any) {
	if d.cfg.logger == nil {
		return
	}

	values := make([]any, 0, 6+len(attrs))
	values = append(values, "operation", operation, "platform", DriverPlatform, "sink_id", d.cfg.sink.ID)
	values = append(values, attrs...)
	d.cfg.logger.InfoContext(ctx, "discord outbound operation", values...)
}

func toInteraction(target dealer.OutboundTarget) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:    target.Interaction.ID,
		AppID: target.Interaction.ApplicationID,
		Token: target.Interaction.Token,
	}
}

// messageContent fits text into one Discord message.
func messageContent(text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return blankContentFence + text + blankContentFence, false
	}

	return truncateContent(text, MaxMessageLength)
}

// truncateContent cuts text to at most limit characters, ending with an
// ellipsis when anything was dropped.
func truncateContent(text string, limit int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}
	if limit <= 1 {
		return string(runes[:limit]), true
	}

	return string(runes[:limit-1]) + "…", true
}

var _ dealer.SinkDispatcher = (*SinkDispatcher)(nil)
