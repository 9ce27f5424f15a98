package kernel

import (
	"context"
	"fmt"

	"dealerbot/pkg/dealer"
)

const commandEventIDSuffix = "#command"

type commandRegistration struct {
	moduleName string
	spec       dealer.CommandSpec
}

// registerModuleCommands validates and claims module-owned command specs.
// Either every command is claimed or none is.
func (k *Kernel) registerModuleCommands(moduleName string, commands []dealer.CommandSpec) error {
	if len(commands) == 0 {
		return nil
	}

	normalized := make([]dealer.CommandSpec, 0, len(commands))
	seenInModule := make(map[string]struct{}, len(commands))
	for index, command := range commands {
		if err := command.Validate(); err != nil {
			return fmt.Errorf("register command[%d] for module %s: %w", index, moduleName, err)
		}

		command = cloneCommandSpec(command)
		key := commandRegistryKey(command.Name)
		if _, exists := seenInModule[key]; exists {
			return fmt.Errorf(
				"register command %s for module %s: duplicate declaration",
				formatCommandKey(command.Name),
				moduleName,
			)
		}
		seenInModule[key] = struct{}{}
		normalized = append(normalized, command)
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	for _, command := range normalized {
		if existing, exists := k.commands[commandRegistryKey(command.Name)]; exists {
			return fmt.Errorf(
				"register command %s for module %s: already registered by module %s",
				formatCommandKey(command.Name),
				moduleName,
				existing.moduleName,
			)
		}
	}
	for _, command := range normalized {
		k.commands[commandRegistryKey(command.Name)] = commandRegistration{
			moduleName: moduleName,
			spec:       command,
		}
	}

	return nil
}

// unregisterModuleCommands removes every command owned by one module.
func (k *Kernel) unregisterModuleCommands(moduleName string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for key, registration := range k.commands {
		if registration.moduleName == moduleName {
			delete(k.commands, key)
		}
	}
}

// lookupCommand resolves one command spec by normalized name.
func (k *Kernel) lookupCommand(name string) (dealer.CommandSpec, bool) {
	k.mu.RLock()
	registration, exists := k.commands[commandRegistryKey(name)]
	k.mu.RUnlock()
	if !exists {
		return dealer.CommandSpec{}, false
	}

	return cloneCommandSpec(registration.spec), true
}

// newDriverDispatcher creates the dispatcher handed to drivers: it publishes
// source events and derives command events from them.
func (k *Kernel) newDriverDispatcher() dealer.EventDispatcher {
	return &commandDerivingSink{
		base:          k.bus,
		lookupCommand: k.lookupCommand,
		serviceLookup: k.services,
		reportAsync:   k.cfg.onAsyncError,
	}
}

// commandDerivingSink publishes source events and derives command events.
type commandDerivingSink struct {
	base          dealer.EventDispatcher
	lookupCommand func(name string) (dealer.CommandSpec, bool)
	serviceLookup dealer.ServiceRegistry
	reportAsync   func(context.Context, string, error)
}

// Publish forwards one source event and, for interactions naming a registered
// command, publishes one derived command.received event. Interactions that do
// not bind get one ephemeral error reply instead.
func (s *commandDerivingSink) Publish(ctx context.Context, event *dealer.Event) error {
	if event == nil {
		return fmt.Errorf("publish command deriving sink: nil event")
	}
	if s.base == nil {
		return fmt.Errorf("publish command deriving sink: nil base sink")
	}

	if err := s.base.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish source event %s: %w", event.Kind, err)
	}
	if event.Kind != dealer.EventKindInteractionCreated || event.Interaction == nil {
		return nil
	}

	spec, registered := s.lookupCommand(event.Interaction.CommandName)
	if !registered {
		s.replyCommandError(ctx, event, fmt.Sprintf("Unknown command /%s.", event.Interaction.CommandName))
		return nil
	}

	invocation, err := dealer.BindCommand(spec, event)
	if err != nil {
		s.reportAsyncError(ctx, "bind command "+spec.Name, err)
		s.replyCommandError(ctx, event, fmt.Sprintf("Could not run /%s: %v", spec.Name, err))
		return nil
	}

	if err := s.base.Publish(ctx, derivedCommandEvent(event, invocation)); err != nil {
		return fmt.Errorf("publish derived command %s: %w", invocation.Name, err)
	}

	return nil
}

func (s *commandDerivingSink) replyCommandError(ctx context.Context, sourceEvent *dealer.Event, text string) {
	if s.serviceLookup == nil {
		s.reportAsyncError(ctx, "command error reply", fmt.Errorf("service lookup unavailable"))
		return
	}

	dispatcher, err := dealer.ResolveAs[dealer.SinkDispatcher](s.serviceLookup, dealer.ServiceSinkDispatcher)
	if err != nil {
		s.reportAsyncError(ctx, "command error reply resolve dispatcher", err)
		return
	}

	target, err := dealer.OutboundTargetFromEvent(sourceEvent)
	if err != nil {
		s.reportAsyncError(ctx, "command error reply derive target", err)
		return
	}

	err = dispatcher.Reply(ctx, dealer.ReplyRequest{
		Target:    target,
		Text:      text,
		Ephemeral: true,
	})
	if err != nil {
		s.reportAsyncError(ctx, "command error reply send", err)
	}
}

func (s *commandDerivingSink) reportAsyncError(ctx context.Context, scope string, err error) {
	if s.reportAsync != nil {
		s.reportAsync(ctx, scope, err)
	}
}

func derivedCommandEvent(sourceEvent *dealer.Event, invocation dealer.CommandInvocation) *dealer.Event {
	interaction := *sourceEvent.Interaction
	if len(sourceEvent.Interaction.Options) > 0 {
		interaction.Options = append([]dealer.CommandOption(nil), sourceEvent.Interaction.Options...)
	}

	return &dealer.Event{
		ID:           sourceEvent.ID + commandEventIDSuffix,
		Kind:         dealer.EventKindCommandReceived,
		OccurredAt:   sourceEvent.OccurredAt,
		Platform:     sourceEvent.Platform,
		Source:       sourceEvent.Source,
		Conversation: sourceEvent.Conversation,
		Actor:        sourceEvent.Actor,
		Interaction:  &interaction,
		Command:      cloneCommandInvocation(invocation),
		Metadata:     cloneStringMap(sourceEvent.Metadata),
	}
}

func commandRegistryKey(name string) string {
	return dealer.NormalizeCommandName(name)
}

func formatCommandKey(name string) string {
	return "/" + dealer.NormalizeCommandName(name)
}

func cloneCommandSpec(spec dealer.CommandSpec) dealer.CommandSpec {
	cloned := spec
	cloned.Name = dealer.NormalizeCommandName(spec.Name)
	if len(spec.Options) > 0 {
		cloned.Options = append([]dealer.CommandOptionSpec(nil), spec.Options...)
	}

	return cloned
}

func cloneCommandInvocation(invocation dealer.CommandInvocation) *dealer.CommandInvocation {
	cloned := invocation
	if len(invocation.Options) > 0 {
		cloned.Options = append([]dealer.CommandOption(nil), invocation.Options...)
	}

	return &cloned
}

func cloneStringMap(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}

	return cloned
}
