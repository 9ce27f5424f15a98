package dealer

import (
	"errors"
	"testing"
	"time"
)

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	event := &Event{
		ID:         "i1",
		Kind:       EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Platform:   PlatformDiscord,
		Source:     EventSource{ID: "discord-main"},
		Interaction: &Interaction{
			ID:            "i1",
			ApplicationID: "app-1",
			Token:         "tok",
			CommandName:   "calculate",
		},
	}

	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Interaction.ID != "i1" || target.Interaction.Token != "tok" || target.Interaction.ApplicationID != "app-1" {
		t.Fatalf("interaction ref = %+v, want copied interaction", target.Interaction)
	}
	if target.Sink == nil {
		t.Fatal("sink = nil, want source sink")
	}
	if target.Sink.Platform != PlatformDiscord || target.Sink.ID != "discord-main" {
		t.Fatalf("sink = %+v, want discord/discord-main", *target.Sink)
	}
}

func TestOutboundTargetFromEventRequiresInteraction(t *testing.T) {
	t.Parallel()

	_, err := OutboundTargetFromEvent(&Event{Kind: EventKindCommandReceived})
	if !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
	}
}

func TestOutboundRequestValidate(t *testing.T) {
	t.Parallel()

	target := OutboundTarget{Interaction: InteractionRef{ID: "i1", ApplicationID: "app", Token: "tok"}}

	tests := []struct {
		name    string
		request interface{ Validate() error }
		wantErr bool
	}{
		{name: "defer ok", request: DeferReplyRequest{Target: target}},
		{name: "defer missing token", request: DeferReplyRequest{Target: OutboundTarget{Interaction: InteractionRef{ID: "i1"}}}, wantErr: true},
		{name: "edit ok", request: EditReplyRequest{Target: target, Text: "42"}},
		{name: "edit empty text", request: EditReplyRequest{Target: target}, wantErr: true},
		{
			name: "edit missing application id",
			request: EditReplyRequest{
				Target: OutboundTarget{Interaction: InteractionRef{ID: "i1", Token: "tok"}},
				Text:   "42",
			},
			wantErr: true,
		},
		{name: "reply ok", request: ReplyRequest{Target: target, Text: "pong", Ephemeral: true}},
		{name: "reply empty text", request: ReplyRequest{Target: target}, wantErr: true},
		{
			name: "empty sink identity",
			request: ReplyRequest{
				Target: OutboundTarget{Interaction: target.Interaction, Sink: &EventSink{}},
				Text:   "pong",
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if testCase.wantErr {
				if !errors.Is(err, ErrInvalidOutboundRequest) {
					t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
