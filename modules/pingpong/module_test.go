package pingpong

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"dealerbot/pkg/dealer"
)

func TestModuleHandleCommand(t *testing.T) {
	tests := []struct {
		name         string
		event        *dealer.Event
		sendErr      error
		wantErr      bool
		wantSentPong bool
	}{
		{
			name:         "ping command triggers pong",
			event:        newCommandEvent("ping"),
			wantSentPong: true,
		},
		{
			name:         "non-ping command is ignored",
			event:        newCommandEvent("calculate"),
			wantSentPong: false,
		},
		{
			name:         "missing command payload is ignored",
			event:        newMissingCommandPayloadEvent(),
			wantSentPong: false,
		},
		{
			name:         "reply failure is returned",
			event:        newCommandEvent("ping"),
			sendErr:      errors.New("unknown interaction"),
			wantErr:      true,
			wantSentPong: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			dispatcher := &captureDispatcher{sendErr: testCase.sendErr}
			module := New()
			module.dispatcher = dispatcher

			err := module.handleCommand(context.Background(), testCase.event)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			sentPong := dispatcher.calls.Load() == 1
			if sentPong != testCase.wantSentPong {
				t.Fatalf("sent pong = %v, want %v", sentPong, testCase.wantSentPong)
			}
			if !sentPong {
				return
			}

			if dispatcher.lastRequest.Text != "pong!" {
				t.Fatalf("sent text = %q, want pong!", dispatcher.lastRequest.Text)
			}
			if dispatcher.lastRequest.Target.Interaction.ID != "interaction-1" {
				t.Fatalf("interaction = %q, want interaction-1", dispatcher.lastRequest.Target.Interaction.ID)
			}
			if dispatcher.lastRequest.Target.Sink == nil {
				t.Fatal("target sink = nil, want source sink")
			}
			if dispatcher.lastRequest.Target.Sink.ID != "discord-main" {
				t.Fatalf("target sink id = %q, want discord-main", dispatcher.lastRequest.Target.Sink.ID)
			}
		})
	}
}

func TestModuleOnRegister(t *testing.T) {
	t.Parallel()

	module := New()
	runtime := moduleRuntimeStub{
		registry: serviceRegistryStub{
			values: map[string]any{
				dealer.ServiceSinkDispatcher: &captureDispatcher{},
			},
		},
	}

	if err := module.OnRegister(context.Background(), runtime); err != nil {
		t.Fatalf("OnRegister failed: %v", err)
	}
	if module.dispatcher == nil {
		t.Fatal("expected sink dispatcher to be configured")
	}

	if err := New().OnRegister(context.Background(), moduleRuntimeStub{registry: serviceRegistryStub{}}); err == nil {
		t.Fatal("expected error without sink dispatcher")
	}
}

func TestModuleSpecUsesCommandCapability(t *testing.T) {
	t.Parallel()

	spec := New().Spec()
	if len(spec.Handlers) != 1 {
		t.Fatalf("handler count = %d, want 1", len(spec.Handlers))
	}
	if len(spec.Commands) != 1 {
		t.Fatalf("command count = %d, want 1", len(spec.Commands))
	}
	if spec.Commands[0].Name != pingCommandName {
		t.Fatalf("command name = %q, want %q", spec.Commands[0].Name, pingCommandName)
	}
	if err := spec.Commands[0].Validate(); err != nil {
		t.Fatalf("command spec invalid: %v", err)
	}

	handler := spec.Handlers[0]
	if !handler.Capability.Interest.RequireInteraction {
		t.Fatal("expected RequireInteraction to be true")
	}
	if !handler.Capability.Interest.RequireCommand {
		t.Fatal("expected RequireCommand to be true")
	}
	if len(handler.Capability.Interest.Kinds) != 1 || handler.Capability.Interest.Kinds[0] != dealer.EventKindCommandReceived {
		t.Fatalf("kinds = %v, want [%s]", handler.Capability.Interest.Kinds, dealer.EventKindCommandReceived)
	}
	if handler.Subscription.Buffer != 0 || handler.Subscription.Workers != 0 || handler.Subscription.HandlerTimeout != 0 {
		t.Fatalf("expected subscription to defer runtime defaults, got %#v", handler.Subscription)
	}
	if len(handler.Capability.RequiredServices) != 1 || handler.Capability.RequiredServices[0] != dealer.ServiceSinkDispatcher {
		t.Fatalf("required services = %v, want [%s]", handler.Capability.RequiredServices, dealer.ServiceSinkDispatcher)
	}
}

func newCommandEvent(name string) *dealer.Event {
	event := newMissingCommandPayloadEvent()
	event.Interaction.CommandName = name
	event.Command = &dealer.CommandInvocation{Name: name}

	return event
}

func newMissingCommandPayloadEvent() *dealer.Event {
	return &dealer.Event{
		ID:         "interaction-1#command",
		Kind:       dealer.EventKindCommandReceived,
		OccurredAt: time.Unix(1, 0).UTC(),
		Platform:   dealer.PlatformDiscord,
		Source: dealer.EventSource{
			Platform: dealer.PlatformDiscord,
			ID:       "discord-main",
		},
		Conversation: dealer.Conversation{
			ID:      "channel-1",
			Type:    dealer.ConversationTypeGuild,
			GuildID: "guild-1",
		},
		Interaction: &dealer.Interaction{
			ID:            "interaction-1",
			ApplicationID: "app-1",
			Token:         "token-1",
		},
	}
}

type captureDispatcher struct {
	calls       atomic.Int64
	sendErr     error
	lastRequest dealer.ReplyRequest
}

func (d *captureDispatcher) DeferReply(context.Context, dealer.DeferReplyRequest) error {
	return nil
}

func (d *captureDispatcher) EditReply(context.Context, dealer.EditReplyRequest) error {
	return nil
}

func (d *captureDispatcher) Reply(_ context.Context, request dealer.ReplyRequest) error {
	d.calls.Add(1)
	d.lastRequest = request

	return d.sendErr
}

type moduleRuntimeStub struct {
	registry dealer.ServiceRegistry
}

func (s moduleRuntimeStub) Services() dealer.ServiceRegistry {
	return s.registry
}

func (moduleRuntimeStub) Subscribe(
	context.Context,
	dealer.InterestSet,
	dealer.SubscriptionSpec,
	dealer.EventHandler,
) (dealer.Subscription, error) {
	return nil, nil
}

type serviceRegistryStub struct {
	values map[string]any
}

func (s serviceRegistryStub) Register(string, any) error {
	return nil
}

func (s serviceRegistryStub) Resolve(name string) (any, error) {
	value, ok := s.values[name]
	if !ok {
		return nil, dealer.ErrServiceNotFound
	}

	return value, nil
}
