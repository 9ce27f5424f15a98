package dealer

// Capability describes what a module can process and what resources it requires.
type Capability struct {
	Name             string
	Description      string
	Interest         InterestSet
	RequiredServices []string
	Metadata         map[string]string
}

// InterestSet describes event selection criteria for capability negotiation.
type InterestSet struct {
	Kinds              []EventKind
	CommandNames       []string
	Sources            []EventSource
	RequireCommand     bool
	RequireInteraction bool
}

// Matches reports whether an event satisfies the declared interest set.
func (i InterestSet) Matches(event *Event) bool {
	if event == nil {
		return false
	}
	if len(i.Kinds) > 0 && !containsKind(i.Kinds, event.Kind) {
		return false
	}
	if i.RequireCommand && event.Command == nil {
		return false
	}
	if i.RequireInteraction && event.Interaction == nil {
		return false
	}
	if len(i.CommandNames) > 0 {
		if event.Command == nil || !containsCommandName(i.CommandNames, event.Command.Name) {
			return false
		}
	}
	if len(i.Sources) > 0 && !sourceMatches(i.Sources, event) {
		return false
	}

	return true
}

// Allows reports whether this interest set can safely satisfy another filter.
func (i InterestSet) Allows(filter InterestSet) bool {
	if len(i.Kinds) > 0 && !allKindsIncluded(filter.Kinds, i.Kinds) {
		return false
	}
	if len(i.CommandNames) > 0 && !allCommandNamesIncluded(filter.CommandNames, i.CommandNames) {
		return false
	}
	if i.RequireCommand && !filter.RequireCommand {
		return false
	}
	if i.RequireInteraction && !filter.RequireInteraction {
		return false
	}

	return true
}

// containsKind reports whether target is present in kinds.
func containsKind(kinds []EventKind, target EventKind) bool {
	for _, candidate := range kinds {
		if candidate == target {
			return true
		}
	}

	return false
}

func containsCommandName(names []string, target string) bool {
	normalized := normalizeCommandName(target)
	for _, candidate := range names {
		if normalizeCommandName(candidate) == normalized {
			return true
		}
	}

	return false
}

// sourceMatches treats an empty Platform or ID in a filter entry as a wildcard.
func sourceMatches(sources []EventSource, event *Event) bool {
	for _, source := range sources {
		if source.Platform != "" && source.Platform != event.Source.Platform {
			continue
		}
		if source.ID != "" && source.ID != event.Source.ID {
			continue
		}
		return true
	}

	return false
}

// allKindsIncluded reports whether subset is fully contained in allowed.
func allKindsIncluded(subset, allowed []EventKind) bool {
	if len(subset) == 0 {
		return false
	}
	for _, item := range subset {
		if !containsKind(allowed, item) {
			return false
		}
	}

	return true
}

func allCommandNamesIncluded(subset, allowed []string) bool {
	if len(subset) == 0 {
		return false
	}
	for _, item := range subset {
		if !containsCommandName(allowed, item) {
			return false
		}
	}

	return true
}
