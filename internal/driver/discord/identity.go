package discord

import "dealerbot/pkg/dealer"

const (
	// DriverType is the configured driver type token for the Discord runtime.
	DriverType = "discord"
	// DriverPlatform is the neutral platform produced by the Discord runtime.
	DriverPlatform dealer.Platform = dealer.PlatformDiscord
)
