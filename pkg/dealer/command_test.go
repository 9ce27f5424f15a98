package dealer

import (
	"strings"
	"testing"
	"time"
)

func TestCommandSpecValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    CommandSpec
		wantErr string
	}{
		{
			name: "plain command",
			spec: CommandSpec{Name: "calculate", Description: "Replies with Winnings!"},
		},
		{
			name: "command with ordered options",
			spec: CommandSpec{
				Name:        "graph",
				Description: "graph nets",
				Options: []CommandOptionSpec{
					{Name: "player", Description: "player name", Type: CommandOptionString, Required: true},
					{Name: "days", Description: "window", Type: CommandOptionInteger},
				},
			},
		},
		{
			name:    "missing name",
			spec:    CommandSpec{Description: "x"},
			wantErr: "missing name",
		},
		{
			name:    "uppercase name",
			spec:    CommandSpec{Name: "Calculate", Description: "x"},
			wantErr: "must be lowercase",
		},
		{
			name:    "name with space",
			spec:    CommandSpec{Name: "calc ulate", Description: "x"},
			wantErr: "unsupported character",
		},
		{
			name:    "name too long",
			spec:    CommandSpec{Name: strings.Repeat("a", MaxCommandNameLength+1), Description: "x"},
			wantErr: "exceeds 32 characters",
		},
		{
			name:    "missing description",
			spec:    CommandSpec{Name: "calculate", Description: "  "},
			wantErr: "missing description",
		},
		{
			name:    "description too long",
			spec:    CommandSpec{Name: "calculate", Description: strings.Repeat("d", MaxCommandDescriptionLength+1)},
			wantErr: "description exceeds",
		},
		{
			name: "duplicate option",
			spec: CommandSpec{
				Name:        "graph",
				Description: "graph nets",
				Options: []CommandOptionSpec{
					{Name: "player", Description: "p", Type: CommandOptionString},
					{Name: "player", Description: "p", Type: CommandOptionString},
				},
			},
			wantErr: "duplicate option name",
		},
		{
			name: "required after optional",
			spec: CommandSpec{
				Name:        "graph",
				Description: "graph nets",
				Options: []CommandOptionSpec{
					{Name: "days", Description: "d", Type: CommandOptionInteger},
					{Name: "player", Description: "p", Type: CommandOptionString, Required: true},
				},
			},
			wantErr: "follows an optional option",
		},
		{
			name: "unknown option type",
			spec: CommandSpec{
				Name:        "graph",
				Description: "graph nets",
				Options: []CommandOptionSpec{
					{Name: "player", Description: "p", Type: "emoji"},
				},
			},
			wantErr: "unsupported type",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.spec.Validate()
			if testCase.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", testCase.wantErr)
			}
			if !strings.Contains(err.Error(), testCase.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErr)
			}
		})
	}
}

func TestBindCommand(t *testing.T) {
	t.Parallel()

	spec := CommandSpec{
		Name:        "graph",
		Description: "graph nets",
		Options: []CommandOptionSpec{
			{Name: "player", Description: "player name", Type: CommandOptionString, Required: true},
			{Name: "days", Description: "window", Type: CommandOptionInteger},
		},
	}

	tests := []struct {
		name        string
		commandName string
		options     []CommandOption
		wantErr     string
		wantOptions map[string]string
	}{
		{
			name:        "required option bound",
			commandName: "graph",
			options:     []CommandOption{{Name: "player", Value: "alice"}},
			wantOptions: map[string]string{"player": "alice"},
		},
		{
			name:        "all options bound",
			commandName: "GRAPH",
			options: []CommandOption{
				{Name: "player", Value: "alice"},
				{Name: "days", Value: "7"},
			},
			wantOptions: map[string]string{"player": "alice", "days": "7"},
		},
		{
			name:        "missing required option",
			commandName: "graph",
			wantErr:     "missing required option player",
		},
		{
			name:        "unknown option",
			commandName: "graph",
			options: []CommandOption{
				{Name: "player", Value: "alice"},
				{Name: "color", Value: "red"},
			},
			wantErr: "unknown option color",
		},
		{
			name:        "name mismatch",
			commandName: "calculate",
			wantErr:     "name mismatch",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := &Event{
				ID:         "interaction-1",
				Kind:       EventKindInteractionCreated,
				OccurredAt: time.Unix(1, 0).UTC(),
				Interaction: &Interaction{
					ID:          "interaction-1",
					Token:       "token",
					CommandName: testCase.commandName,
					Options:     testCase.options,
				},
			}

			invocation, err := BindCommand(spec, event)
			if testCase.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", testCase.wantErr)
				}
				if !strings.Contains(err.Error(), testCase.wantErr) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if invocation.Name != "graph" {
				t.Fatalf("name = %q, want graph", invocation.Name)
			}
			if invocation.SourceEventID != "interaction-1" {
				t.Fatalf("source event id = %q, want interaction-1", invocation.SourceEventID)
			}
			for name, want := range testCase.wantOptions {
				got, ok := invocation.Option(name)
				if !ok {
					t.Fatalf("option %s missing", name)
				}
				if got != want {
					t.Fatalf("option %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	valid := func() *Event {
		return &Event{
			ID:           "e1",
			Kind:         EventKindInteractionCreated,
			OccurredAt:   time.Unix(10, 0).UTC(),
			Conversation: Conversation{ID: "c1", Type: ConversationTypeGuild, GuildID: "g1"},
			Interaction:  &Interaction{ID: "i1", Token: "tok", CommandName: "calculate"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Event)
		wantErr bool
	}{
		{name: "valid interaction event", mutate: func(*Event) {}},
		{name: "missing id", mutate: func(e *Event) { e.ID = "" }, wantErr: true},
		{name: "missing conversation", mutate: func(e *Event) { e.Conversation.ID = "" }, wantErr: true},
		{name: "missing interaction", mutate: func(e *Event) { e.Interaction = nil }, wantErr: true},
		{name: "missing token", mutate: func(e *Event) { e.Interaction.Token = "" }, wantErr: true},
		{
			name: "command event without command payload",
			mutate: func(e *Event) {
				e.Kind = EventKindCommandReceived
			},
			wantErr: true,
		},
		{name: "unknown kind", mutate: func(e *Event) { e.Kind = "message.created" }, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event := valid()
			testCase.mutate(event)
			err := event.Validate()
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
