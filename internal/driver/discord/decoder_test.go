package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"dealerbot/pkg/dealer"
)

func TestDefaultDecoderDecode(t *testing.T) {
	t.Parallel()

	occurredAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := Update{
		ID:            "interaction-1",
		ApplicationID: "app-1",
		Token:         "token-1",
		OccurredAt:    occurredAt,
		GuildID:       "guild-1",
		ChannelID:     "channel-1",
		Actor:         ActorRef{ID: "user-1", Username: "dealer", DisplayName: "Dealer"},
		Command: CommandPayload{
			Name:    "calculate",
			Options: []OptionPayload{{Name: "rounds", Type: dealer.CommandOptionInteger, Value: "3"}},
		},
		Locale: "en-US",
	}

	tests := []struct {
		name    string
		mutate  func(update *Update)
		wantErr bool
		check   func(t *testing.T, event *dealer.Event)
	}{
		{
			name: "guild interaction",
			check: func(t *testing.T, event *dealer.Event) {
				if event.Kind != dealer.EventKindInteractionCreated {
					t.Fatalf("kind = %s, want %s", event.Kind, dealer.EventKindInteractionCreated)
				}
				if event.Conversation.Type != dealer.ConversationTypeGuild || event.Conversation.GuildID != "guild-1" {
					t.Fatalf("conversation = %+v, want guild-1", event.Conversation)
				}
				if event.Interaction.Token != "token-1" || event.Interaction.ApplicationID != "app-1" {
					t.Fatalf("interaction = %+v", event.Interaction)
				}
				if len(event.Interaction.Options) != 1 || event.Interaction.Options[0].Value != "3" {
					t.Fatalf("options = %+v, want rounds=3", event.Interaction.Options)
				}
				if event.Metadata["locale"] != "en-US" {
					t.Fatalf("metadata = %v, want locale", event.Metadata)
				}
				if !event.OccurredAt.Equal(occurredAt) {
					t.Fatalf("occurred_at = %s, want %s", event.OccurredAt, occurredAt)
				}
			},
		},
		{
			name:   "direct interaction",
			mutate: func(update *Update) { update.GuildID = "" },
			check: func(t *testing.T, event *dealer.Event) {
				if event.Conversation.Type != dealer.ConversationTypeDirect {
					t.Fatalf("conversation type = %s, want direct", event.Conversation.Type)
				}
			},
		},
		{
			name:    "missing token",
			mutate:  func(update *Update) { update.Token = "" },
			wantErr: true,
		},
		{
			name:    "missing command",
			mutate:  func(update *Update) { update.Command.Name = " " },
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			update := base
			update.Command.Options = append([]OptionPayload(nil), base.Command.Options...)
			if testCase.mutate != nil {
				testCase.mutate(&update)
			}

			event, err := NewDefaultDecoder().Decode(context.Background(), update)
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected decode error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if err := event.Validate(); err != nil {
				t.Fatalf("decoded event invalid: %v", err)
			}
			testCase.check(t, event)
		})
	}
}

func TestDriverStartPublishesDecodedEvents(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 2)
	updates <- Update{
		ID:         "interaction-1",
		Token:      "token-1",
		OccurredAt: time.Now().UTC(),
		ChannelID:  "channel-1",
		Command:    CommandPayload{Name: "calculate"},
	}
	updates <- Update{ID: "broken"}
	close(updates)

	var asyncErrs int
	driver, err := NewDriver(
		ChannelSource{Updates: updates},
		NewDefaultDecoder(),
		WithName("discord-main"),
		WithErrorHandler(func(context.Context, error) { asyncErrs++ }),
	)
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}
	if driver.Name() != "discord-main" {
		t.Fatalf("name = %q, want discord-main", driver.Name())
	}

	dispatcher := &captureDispatcher{}
	err = driver.Start(context.Background(), dispatcher)
	if err == nil {
		t.Fatal("expected consume error for undecodable update")
	}
	if asyncErrs != 1 {
		t.Fatalf("async errors = %d, want 1", asyncErrs)
	}
	if len(dispatcher.events) != 1 {
		t.Fatalf("published = %d, want 1", len(dispatcher.events))
	}
	event := dispatcher.events[0]
	if event.Source != (dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "discord-main"}) {
		t.Fatalf("source = %+v, want discord/discord-main", event.Source)
	}
}

func TestDriverStartReportsPublishErrors(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 1)
	updates <- Update{
		ID:         "interaction-1",
		Token:      "token-1",
		OccurredAt: time.Now().UTC(),
		ChannelID:  "channel-1",
		Command:    CommandPayload{Name: "calculate"},
	}
	close(updates)

	driver, err := NewDriver(ChannelSource{Updates: updates}, NewDefaultDecoder())
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	publishErr := errors.New("bus closed")
	err = driver.Start(context.Background(), &captureDispatcher{err: publishErr})
	if !errors.Is(err, publishErr) {
		t.Fatalf("start error = %v, want %v", err, publishErr)
	}
	if err := driver.Start(context.Background(), nil); err == nil {
		t.Fatal("expected nil dispatcher error")
	}
}

type captureDispatcher struct {
	events []*dealer.Event
	err    error
}

func (d *captureDispatcher) Publish(_ context.Context, event *dealer.Event) error {
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)

	return nil
}
