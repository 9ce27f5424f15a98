package dealer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxCommandNameLength is the platform limit for command and option names.
	MaxCommandNameLength = 32
	// MaxCommandDescriptionLength is the platform limit for descriptions.
	MaxCommandDescriptionLength = 100
	// MaxCommandOptions is the platform limit for options on one command.
	MaxCommandOptions = 25
)

// CommandOptionType identifies the value type of one command option.
type CommandOptionType string

const (
	// CommandOptionString accepts free text.
	CommandOptionString CommandOptionType = "string"
	// CommandOptionInteger accepts whole numbers.
	CommandOptionInteger CommandOptionType = "integer"
	// CommandOptionNumber accepts floating point numbers.
	CommandOptionNumber CommandOptionType = "number"
	// CommandOptionBoolean accepts true or false.
	CommandOptionBoolean CommandOptionType = "boolean"
	// CommandOptionUser accepts a user reference.
	CommandOptionUser CommandOptionType = "user"
	// CommandOptionChannel accepts a channel reference.
	CommandOptionChannel CommandOptionType = "channel"
	// CommandOptionRole accepts a role reference.
	CommandOptionRole CommandOptionType = "role"
	// CommandOptionAttachment accepts an uploaded file.
	CommandOptionAttachment CommandOptionType = "attachment"
)

// Validate checks whether one option type is supported.
func (t CommandOptionType) Validate() error {
	switch t {
	case CommandOptionString, CommandOptionInteger, CommandOptionNumber, CommandOptionBoolean,
		CommandOptionUser, CommandOptionChannel, CommandOptionRole, CommandOptionAttachment:
		return nil
	default:
		return fmt.Errorf("validate command option type: unsupported type %q", t)
	}
}

// CommandOptionSpec declares one available option in one command registration.
type CommandOptionSpec struct {
	// Name is the option key.
	Name string
	// Description describes option behavior for the platform picker.
	Description string
	// Type is the option value type.
	Type CommandOptionType
	// Required reports whether this option must appear in one invocation.
	Required bool
}

// Validate checks command option specification coherence.
func (s CommandOptionSpec) Validate() error {
	if err := validateCommandName(s.Name); err != nil {
		return fmt.Errorf("validate command option spec: %w", err)
	}
	if err := validateCommandDescription(s.Description); err != nil {
		return fmt.Errorf("validate command option spec %s: %w", s.Name, err)
	}
	if err := s.Type.Validate(); err != nil {
		return fmt.Errorf("validate command option spec %s: %w", s.Name, err)
	}

	return nil
}

// CommandSpec declares one module command registration.
type CommandSpec struct {
	// Name is the slash command name without prefix.
	Name string
	// Description is shown by the platform next to the command.
	Description string
	// Options declares supported command options.
	Options []CommandOptionSpec
}

// Validate checks command specification coherence.
func (s CommandSpec) Validate() error {
	if err := validateCommandName(s.Name); err != nil {
		return fmt.Errorf("validate command spec: %w", err)
	}
	if err := validateCommandDescription(s.Description); err != nil {
		return fmt.Errorf("validate command spec %s: %w", s.Name, err)
	}
	if len(s.Options) > MaxCommandOptions {
		return fmt.Errorf("validate command spec %s: %d options exceeds limit %d", s.Name, len(s.Options), MaxCommandOptions)
	}

	seenNames := make(map[string]struct{}, len(s.Options))
	seenOptional := false
	for index, option := range s.Options {
		if err := option.Validate(); err != nil {
			return fmt.Errorf("validate command spec %s option[%d]: %w", s.Name, index, err)
		}

		name := normalizeCommandName(option.Name)
		if _, exists := seenNames[name]; exists {
			return fmt.Errorf("validate command spec %s: duplicate option name %q", s.Name, option.Name)
		}
		seenNames[name] = struct{}{}

		if !option.Required {
			seenOptional = true
			continue
		}
		if seenOptional {
			return fmt.Errorf("validate command spec %s: required option %q follows an optional option", s.Name, option.Name)
		}
	}

	return nil
}

// CommandOption is one option value carried by an invocation.
type CommandOption struct {
	// Name is the normalized option name.
	Name string
	// Type is the declared option type when known.
	Type CommandOptionType
	// Value is the option value rendered as text.
	Value string
}

// CommandInvocation carries one validated command event payload.
type CommandInvocation struct {
	// Name is the normalized command name.
	Name string
	// Options stores the options bound against the command spec.
	Options []CommandOption
	// SourceEventID identifies the inbound source event that produced this command.
	SourceEventID string
	// SourceEventKind identifies the inbound source event kind.
	SourceEventKind EventKind
}

// Validate checks command invocation contract fields.
func (c *CommandInvocation) Validate() error {
	if c == nil {
		return fmt.Errorf("validate command invocation: nil invocation")
	}
	if normalizeCommandName(c.Name) == "" {
		return fmt.Errorf("validate command invocation: missing name")
	}
	if c.SourceEventID == "" {
		return fmt.Errorf("validate command invocation: missing source_event_id")
	}
	if c.SourceEventKind == "" {
		return fmt.Errorf("validate command invocation: missing source_event_kind")
	}

	return nil
}

// Option returns the named option value when present.
func (c *CommandInvocation) Option(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	normalized := normalizeCommandName(name)
	for _, option := range c.Options {
		if option.Name == normalized {
			return option.Value, true
		}
	}

	return "", false
}

// BindCommand validates the interaction carried by sourceEvent against one command spec.
func BindCommand(spec CommandSpec, sourceEvent *Event) (CommandInvocation, error) {
	if sourceEvent == nil {
		return CommandInvocation{}, fmt.Errorf("bind command: nil source event")
	}
	if sourceEvent.Interaction == nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: missing interaction", spec.Name)
	}
	if err := spec.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	specName := normalizeCommandName(spec.Name)
	if normalizeCommandName(sourceEvent.Interaction.CommandName) != specName {
		return CommandInvocation{}, fmt.Errorf(
			"bind command %s: name mismatch, got %q",
			spec.Name,
			sourceEvent.Interaction.CommandName,
		)
	}

	byName := make(map[string]CommandOptionSpec, len(spec.Options))
	for _, option := range spec.Options {
		byName[normalizeCommandName(option.Name)] = option
	}

	options := make([]CommandOption, 0, len(sourceEvent.Interaction.Options))
	seen := make(map[string]struct{}, len(sourceEvent.Interaction.Options))
	for _, raw := range sourceEvent.Interaction.Options {
		name := normalizeCommandName(raw.Name)
		optionSpec, exists := byName[name]
		if !exists {
			return CommandInvocation{}, fmt.Errorf("bind command %s: unknown option %s", spec.Name, raw.Name)
		}
		if _, duplicate := seen[name]; duplicate {
			return CommandInvocation{}, fmt.Errorf("bind command %s: duplicate option %s", spec.Name, raw.Name)
		}
		seen[name] = struct{}{}
		options = append(options, CommandOption{
			Name:  name,
			Type:  optionSpec.Type,
			Value: raw.Value,
		})
	}

	for _, option := range spec.Options {
		if !option.Required {
			continue
		}
		if _, exists := seen[normalizeCommandName(option.Name)]; !exists {
			return CommandInvocation{}, fmt.Errorf(
				"bind command %s: missing required option %s",
				spec.Name,
				option.Name,
			)
		}
	}

	invocation := CommandInvocation{
		Name:            specName,
		Options:         options,
		SourceEventID:   sourceEvent.ID,
		SourceEventKind: sourceEvent.Kind,
	}
	if err := invocation.Validate(); err != nil {
		return CommandInvocation{}, fmt.Errorf("bind command %s: %w", spec.Name, err)
	}

	return invocation, nil
}

// NormalizeCommandName returns the canonical registry form of a command name.
func NormalizeCommandName(value string) string {
	return normalizeCommandName(value)
}

func validateCommandName(name string) error {
	if name == "" {
		return fmt.Errorf("missing name")
	}
	if name != strings.ToLower(name) {
		return fmt.Errorf("name %q must be lowercase", name)
	}
	if length := utf8.RuneCountInString(name); length > MaxCommandNameLength {
		return fmt.Errorf("name %q exceeds %d characters", name, MaxCommandNameLength)
	}
	for _, r := range name {
		if r == '-' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			continue
		}
		return fmt.Errorf("name %q contains unsupported character %q", name, r)
	}

	return nil
}

func validateCommandDescription(description string) error {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return fmt.Errorf("missing description")
	}
	if length := utf8.RuneCountInString(description); length > MaxCommandDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", MaxCommandDescriptionLength)
	}

	return nil
}

func normalizeCommandName(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
