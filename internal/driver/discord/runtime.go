package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dealerbot/pkg/dealer"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultRuntimePublishTimeout = 2 * time.Second
	defaultRuntimeRequestTimeout = 3 * time.Second
)

// Defaults supplies credentials a driver config may leave out, usually
// taken from the process environment.
type Defaults struct {
	Token string
}

type runtimeConfig struct {
	Token          string `json:"token"`
	PublishTimeout string `json:"publish_timeout"`
	RequestTimeout string `json:"request_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
}

type parsedRuntimeConfig struct {
	token          string
	publishTimeout time.Duration
	requestTimeout time.Duration
	updateBuffer   int
}

// BuildRuntimeFromConfig builds one Discord driver runtime from its JSON config.
func BuildRuntimeFromConfig(
	name string,
	logger *slog.Logger,
	rawConfig []byte,
	defaults Defaults,
) (dealer.EventSource, dealer.Driver, dealer.SinkDispatcher, error) {
	cfg, err := parseRuntimeConfig(rawConfig, defaults)
	if err != nil {
		return dealer.EventSource{}, nil, nil, fmt.Errorf("parse discord runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	session, err := newBotSession(cfg.token)
	if err != nil {
		return dealer.EventSource{}, nil, nil, fmt.Errorf("new discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	reportError := func(ctx context.Context, err error) {
		logger.ErrorContext(ctx, "discord driver async error", "driver", name, "error", err)
	}

	source, err := NewGatewaySource(
		session,
		WithUpdateBuffer(cfg.updateBuffer),
		WithGatewayLogger(logger),
		WithGatewayErrorHandler(reportError),
	)
	if err != nil {
		return dealer.EventSource{}, nil, nil, fmt.Errorf("new discord gateway source: %w", err)
	}

	driver, err := NewDriver(
		source,
		NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithErrorHandler(reportError),
	)
	if err != nil {
		return dealer.EventSource{}, nil, nil, fmt.Errorf("new discord driver: %w", err)
	}

	sink, err := NewOutboundDispatcher(
		session,
		WithOutboundTimeout(cfg.requestTimeout),
		WithOutboundLogger(logger),
		WithSinkRef(dealer.EventSink{Platform: DriverPlatform, ID: name}),
	)
	if err != nil {
		return dealer.EventSource{}, nil, nil, fmt.Errorf("new discord sink dispatcher: %w", err)
	}

	return dealer.EventSource{Platform: DriverPlatform, ID: name}, driver, sink, nil
}

func parseRuntimeConfig(raw []byte, defaults Defaults) (parsedRuntimeConfig, error) {
	var parsed runtimeConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
		}
	}

	cfg := parsedRuntimeConfig{
		token:          strings.TrimSpace(parsed.Token),
		publishTimeout: defaultRuntimePublishTimeout,
		requestTimeout: defaultRuntimeRequestTimeout,
		updateBuffer:   parsed.UpdateBuffer,
	}
	if cfg.token == "" {
		cfg.token = strings.TrimSpace(defaults.Token)
	}
	if cfg.updateBuffer <= 0 {
		cfg.updateBuffer = defaultUpdateBuffer
	}

	var err error
	if cfg.publishTimeout, err = parsePositiveDuration("publish_timeout", parsed.PublishTimeout, cfg.publishTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}
	if cfg.requestTimeout, err = parsePositiveDuration("request_timeout", parsed.RequestTimeout, cfg.requestTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}

	if cfg.token == "" {
		return parsedRuntimeConfig{}, fmt.Errorf("token is required; set it in the driver config or DISCORD_TOKEN")
	}

	return cfg, nil
}

func parsePositiveDuration(field string, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", field)
	}

	return parsed, nil
}
