package driver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"dealerbot/pkg/dealer"
)

func TestNewRegistryValidation(t *testing.T) {
	t.Parallel()

	builder := func(context.Context, Definition, *slog.Logger) (Runtime, error) {
		return Runtime{}, nil
	}

	tests := []struct {
		name        string
		descriptors []Descriptor
		wantErrSub  string
	}{
		{
			name:        "empty type",
			descriptors: []Descriptor{{Platform: dealer.PlatformDiscord, Builder: builder}},
			wantErrSub:  "empty descriptor type",
		},
		{
			name:        "empty platform",
			descriptors: []Descriptor{{Type: "discord", Builder: builder}},
			wantErrSub:  "empty platform",
		},
		{
			name:        "nil builder",
			descriptors: []Descriptor{{Type: "discord", Platform: dealer.PlatformDiscord}},
			wantErrSub:  "nil builder",
		},
		{
			name: "duplicate type",
			descriptors: []Descriptor{
				{Type: "discord", Platform: dealer.PlatformDiscord, Builder: builder},
				{Type: "discord", Platform: dealer.PlatformDiscord, Builder: builder},
			},
			wantErrSub: "duplicate",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewRegistry(testCase.descriptors)
			if err == nil || !strings.Contains(err.Error(), testCase.wantErrSub) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSub)
			}
		})
	}
}

func TestRegistryBuildEnabled(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry([]Descriptor{
		{
			Type:     "discord",
			Platform: dealer.PlatformDiscord,
			Builder: func(_ context.Context, definition Definition, _ *slog.Logger) (Runtime, error) {
				if definition.Name == "broken" {
					return Runtime{}, errors.New("broken build")
				}

				return Runtime{Driver: stubDriver{name: definition.Name}}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	runtimes, err := registry.BuildEnabled(context.Background(), []Definition{
		{Name: "discord-main", Type: "discord", Enabled: true, Config: []byte("{}")},
		{Name: "broken", Type: "discord", Enabled: false, Config: []byte("{}")},
	}, slog.Default())
	if err != nil {
		t.Fatalf("build enabled failed: %v", err)
	}
	if len(runtimes) != 1 {
		t.Fatalf("runtimes len = %d, want 1", len(runtimes))
	}
	if runtimes[0].Source != (dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "discord-main"}) {
		t.Fatalf("source = %+v, want discord/discord-main", runtimes[0].Source)
	}

	failures := [][]Definition{
		{{Name: "broken", Type: "discord", Enabled: true}},
		{{Name: "x", Type: "slack", Enabled: true}},
		{{Type: "discord", Enabled: true}},
		{{Name: "dup", Type: "discord", Enabled: true}, {Name: "dup", Type: "discord", Enabled: true}},
	}
	for _, definitions := range failures {
		if _, err := registry.BuildEnabled(context.Background(), definitions, slog.Default()); err == nil {
			t.Fatalf("build %+v succeeded, want error", definitions)
		}
	}
}

func TestCompositeSinkDispatcherRoutesByID(t *testing.T) {
	t.Parallel()

	primary := &stubSinkDispatcher{}
	secondary := &stubSinkDispatcher{}
	dispatcher, err := NewCompositeSinkDispatcher([]Runtime{
		{
			Source:         dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "discord-main"},
			SinkDispatcher: primary,
		},
		{
			Source:         dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "discord-alt"},
			SinkDispatcher: secondary,
		},
	})
	if err != nil {
		t.Fatalf("new composite sink dispatcher failed: %v", err)
	}

	target := dealer.OutboundTarget{
		Interaction: dealer.InteractionRef{ID: "i1", ApplicationID: "app", Token: "tok"},
		Sink:        &dealer.EventSink{ID: "discord-main"},
	}
	if err := dispatcher.DeferReply(context.Background(), dealer.DeferReplyRequest{Target: target}); err != nil {
		t.Fatalf("defer reply failed: %v", err)
	}
	if err := dispatcher.EditReply(context.Background(), dealer.EditReplyRequest{Target: target, Text: "42"}); err != nil {
		t.Fatalf("edit reply failed: %v", err)
	}
	if err := dispatcher.Reply(context.Background(), dealer.ReplyRequest{Target: target, Text: "hi"}); err != nil {
		t.Fatalf("reply failed: %v", err)
	}

	if primary.calls != 3 {
		t.Fatalf("primary calls = %d, want 3", primary.calls)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary calls = %d, want 0", secondary.calls)
	}
}

func TestCompositeSinkDispatcherResolveFailures(t *testing.T) {
	t.Parallel()

	two, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "a"}, SinkDispatcher: &stubSinkDispatcher{}},
		{Source: dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "b"}, SinkDispatcher: &stubSinkDispatcher{}},
	})
	if err != nil {
		t.Fatalf("new composite sink dispatcher failed: %v", err)
	}
	empty, err := NewCompositeSinkDispatcher(nil)
	if err != nil {
		t.Fatalf("new empty composite sink dispatcher failed: %v", err)
	}

	interaction := dealer.InteractionRef{ID: "i1", ApplicationID: "app", Token: "tok"}
	tests := []struct {
		name       string
		dispatcher *CompositeSinkDispatcher
		sink       *dealer.EventSink
	}{
		{name: "no sinks", dispatcher: empty},
		{name: "ambiguous platform", dispatcher: two, sink: &dealer.EventSink{Platform: dealer.PlatformDiscord}},
		{name: "missing sink with several routes", dispatcher: two},
		{name: "unknown id", dispatcher: two, sink: &dealer.EventSink{ID: "c"}},
		{name: "platform mismatch", dispatcher: two, sink: &dealer.EventSink{Platform: "slack", ID: "a"}},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.dispatcher.Reply(context.Background(), dealer.ReplyRequest{
				Target: dealer.OutboundTarget{Interaction: interaction, Sink: testCase.sink},
				Text:   "hello",
			})
			if !errors.Is(err, dealer.ErrOutboundUnsupported) {
				t.Fatalf("error = %v, want %v", err, dealer.ErrOutboundUnsupported)
			}
		})
	}
}

func TestNewCompositeSinkDispatcherRejectsDuplicateSinks(t *testing.T) {
	t.Parallel()

	_, err := NewCompositeSinkDispatcher([]Runtime{
		{Source: dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "a"}, SinkDispatcher: &stubSinkDispatcher{}},
		{Source: dealer.EventSource{Platform: dealer.PlatformDiscord, ID: "a"}, SinkDispatcher: &stubSinkDispatcher{}},
	})
	if err == nil {
		t.Fatal("expected duplicate sink error")
	}
}

type stubDriver struct {
	name string
}

func (d stubDriver) Name() string {
	return d.name
}

func (stubDriver) Start(context.Context, dealer.EventDispatcher) error {
	return nil
}

func (stubDriver) Shutdown(context.Context) error {
	return nil
}

type stubSinkDispatcher struct {
	calls int
}

func (d *stubSinkDispatcher) DeferReply(context.Context, dealer.DeferReplyRequest) error {
	d.calls++
	return nil
}

func (d *stubSinkDispatcher) EditReply(context.Context, dealer.EditReplyRequest) error {
	d.calls++
	return nil
}

func (d *stubSinkDispatcher) Reply(context.Context, dealer.ReplyRequest) error {
	d.calls++
	return nil
}
