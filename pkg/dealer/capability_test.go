package dealer

import "testing"

func TestInterestSetMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interest InterestSet
		event    *Event
		want     bool
	}{
		{
			name: "require command matches when command is present",
			interest: InterestSet{
				Kinds:          []EventKind{EventKindCommandReceived},
				RequireCommand: true,
			},
			event: &Event{
				Kind:    EventKindCommandReceived,
				Command: &CommandInvocation{Name: "calculate"},
			},
			want: true,
		},
		{
			name: "require command rejects missing command",
			interest: InterestSet{
				Kinds:          []EventKind{EventKindCommandReceived},
				RequireCommand: true,
			},
			event: &Event{Kind: EventKindCommandReceived},
			want:  false,
		},
		{
			name:     "nil event never matches",
			interest: InterestSet{},
			event:    nil,
			want:     false,
		},
		{
			name: "command name filter is case insensitive",
			interest: InterestSet{
				CommandNames: []string{"Calculate"},
			},
			event: &Event{
				Kind:    EventKindCommandReceived,
				Command: &CommandInvocation{Name: "calculate"},
			},
			want: true,
		},
		{
			name: "command name filter rejects other commands",
			interest: InterestSet{
				CommandNames: []string{"calculate"},
			},
			event: &Event{
				Kind:    EventKindCommandReceived,
				Command: &CommandInvocation{Name: "ping"},
			},
			want: false,
		},
		{
			name: "require interaction rejects missing interaction",
			interest: InterestSet{
				RequireInteraction: true,
			},
			event: &Event{Kind: EventKindInteractionCreated},
			want:  false,
		},
		{
			name: "source filter matches platform wildcard",
			interest: InterestSet{
				Sources: []EventSource{{Platform: PlatformDiscord}},
			},
			event: &Event{
				Kind:   EventKindInteractionCreated,
				Source: EventSource{Platform: PlatformDiscord, ID: "discord-main"},
			},
			want: true,
		},
		{
			name: "source filter rejects id mismatch",
			interest: InterestSet{
				Sources: []EventSource{{Platform: PlatformDiscord, ID: "discord-alt"}},
			},
			event: &Event{
				Kind:   EventKindInteractionCreated,
				Source: EventSource{Platform: PlatformDiscord, ID: "discord-main"},
			},
			want: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := testCase.interest.Matches(testCase.event); got != testCase.want {
				t.Fatalf("Matches() = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestInterestSetAllows(t *testing.T) {
	t.Parallel()

	capability := InterestSet{
		Kinds:          []EventKind{EventKindCommandReceived},
		CommandNames:   []string{"calculate"},
		RequireCommand: true,
	}

	tests := []struct {
		name   string
		filter InterestSet
		want   bool
	}{
		{
			name:   "identical filter is allowed",
			filter: capability,
			want:   true,
		},
		{
			name: "filter on another kind is rejected",
			filter: InterestSet{
				Kinds:          []EventKind{EventKindInteractionCreated},
				CommandNames:   []string{"calculate"},
				RequireCommand: true,
			},
			want: false,
		},
		{
			name: "filter without command names is rejected",
			filter: InterestSet{
				Kinds:          []EventKind{EventKindCommandReceived},
				RequireCommand: true,
			},
			want: false,
		},
		{
			name: "filter dropping the command requirement is rejected",
			filter: InterestSet{
				Kinds:        []EventKind{EventKindCommandReceived},
				CommandNames: []string{"calculate"},
			},
			want: false,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := capability.Allows(testCase.filter); got != testCase.want {
				t.Fatalf("Allows() = %v, want %v", got, testCase.want)
			}
		})
	}
}
