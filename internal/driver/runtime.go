package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"dealerbot/pkg/dealer"
)

// Definition describes one configured driver entry.
type Definition struct {
	// Name is the configured driver instance identifier.
	Name string
	// Type selects which builder constructs this runtime.
	Type string
	// Enabled controls whether this definition is built.
	Enabled bool
	// Config stores the driver-type-specific JSON payload.
	Config []byte
}

// Runtime contains one fully built driver instance.
type Runtime struct {
	// Source identifies the events produced by Driver.
	Source dealer.EventSource
	// Driver is registered with the kernel.
	Driver dealer.Driver
	// SinkDispatcher answers interactions received by Driver.
	SinkDispatcher dealer.SinkDispatcher
}

// BuilderFunc builds one runtime from one configured driver definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds a driver type token to its platform and builder.
type Descriptor struct {
	// Type is the driver type token used in configuration, for example "discord".
	Type string
	// Platform is the neutral platform served by this driver type.
	Platform dealer.Platform
	// Builder constructs one runtime instance for this driver type.
	Builder BuilderFunc
}

type registryEntry struct {
	platform dealer.Platform
	builder  BuilderFunc
}

// Registry maps driver types to runtime builders.
type Registry struct {
	entries map[string]registryEntry
	types   []string
}

// NewRegistry creates an immutable driver registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	entries := make(map[string]registryEntry, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		switch {
		case descriptor.Type == "":
			return nil, fmt.Errorf("new registry: empty descriptor type")
		case descriptor.Platform == "":
			return nil, fmt.Errorf("new registry type %s: empty platform", descriptor.Type)
		case descriptor.Builder == nil:
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := entries[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		entries[descriptor.Type] = registryEntry{platform: descriptor.Platform, builder: descriptor.Builder}
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{entries: entries, types: types}, nil
}

// Types returns registered driver types in sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	return append([]string(nil), r.types...)
}

// PlatformForType resolves a registered driver type to its platform.
func (r *Registry) PlatformForType(driverType string) (dealer.Platform, error) {
	if r == nil {
		return "", fmt.Errorf("resolve platform: nil registry")
	}

	entry, exists := r.entries[driverType]
	if !exists {
		return "", fmt.Errorf("resolve platform: unsupported type %s", driverType)
	}

	return entry.platform, nil
}

// BuildEnabled builds every enabled definition in order.
func (r *Registry) BuildEnabled(ctx context.Context, definitions []Definition, logger *slog.Logger) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	runtimes := make([]Runtime, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}

		entry, exists := r.entries[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build driver %s: unsupported type %q", definition.Name, definition.Type)
		}

		runtime, err := entry.builder(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
		}
		if runtime.Driver == nil {
			return nil, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
		}
		if runtime.Source.Platform == "" {
			runtime.Source.Platform = entry.platform
		}
		if runtime.Source.ID == "" {
			runtime.Source.ID = definition.Name
		}

		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

type sinkRoute struct {
	ref        dealer.EventSink
	dispatcher dealer.SinkDispatcher
}

// CompositeSinkDispatcher routes interaction replies to the driver that
// received the interaction.
type CompositeSinkDispatcher struct {
	byID       map[string]sinkRoute
	byPlatform map[dealer.Platform][]string
}

// NewCompositeSinkDispatcher creates a composite dispatcher from runtimes.
// Runtimes without a SinkDispatcher are skipped.
func NewCompositeSinkDispatcher(runtimes []Runtime) (*CompositeSinkDispatcher, error) {
	byID := make(map[string]sinkRoute)
	byPlatform := make(map[dealer.Platform][]string)
	for _, runtime := range runtimes {
		if runtime.SinkDispatcher == nil {
			continue
		}
		if runtime.Source.ID == "" {
			return nil, fmt.Errorf("new composite sink dispatcher: missing sink id")
		}
		if _, exists := byID[runtime.Source.ID]; exists {
			return nil, fmt.Errorf("new composite sink dispatcher: duplicate sink id %s", runtime.Source.ID)
		}

		ref := dealer.EventSink{Platform: runtime.Source.Platform, ID: runtime.Source.ID}
		byID[ref.ID] = sinkRoute{ref: ref, dispatcher: runtime.SinkDispatcher}
		byPlatform[ref.Platform] = append(byPlatform[ref.Platform], ref.ID)
	}

	return &CompositeSinkDispatcher{byID: byID, byPlatform: byPlatform}, nil
}

// DeferReply routes a deferral to the sink owning the interaction.
func (d *CompositeSinkDispatcher) DeferReply(ctx context.Context, request dealer.DeferReplyRequest) error {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return fmt.Errorf("resolve sink for defer reply: %w", err)
	}
	if err := dispatcher.DeferReply(ctx, request); err != nil {
		return fmt.Errorf("route defer reply: %w", err)
	}

	return nil
}

// EditReply routes a deferred reply edit to the sink owning the interaction.
func (d *CompositeSinkDispatcher) EditReply(ctx context.Context, request dealer.EditReplyRequest) error {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return fmt.Errorf("resolve sink for edit reply: %w", err)
	}
	if err := dispatcher.EditReply(ctx, request); err != nil {
		return fmt.Errorf("route edit reply: %w", err)
	}

	return nil
}

// Reply routes an immediate reply to the sink owning the interaction.
func (d *CompositeSinkDispatcher) Reply(ctx context.Context, request dealer.ReplyRequest) error {
	dispatcher, err := d.resolve(request.Target)
	if err != nil {
		return fmt.Errorf("resolve sink for reply: %w", err)
	}
	if err := dispatcher.Reply(ctx, request); err != nil {
		return fmt.Errorf("route reply: %w", err)
	}

	return nil
}

func (d *CompositeSinkDispatcher) resolve(target dealer.OutboundTarget) (dealer.SinkDispatcher, error) {
	if d == nil {
		return nil, fmt.Errorf("nil dispatcher")
	}
	if len(d.byID) == 0 {
		return nil, fmt.Errorf("%w: no sinks configured", dealer.ErrOutboundUnsupported)
	}
	if target.Sink != nil {
		return d.resolveSinkRef(*target.Sink)
	}
	if len(d.byID) == 1 {
		for _, route := range d.byID {
			return route.dispatcher, nil
		}
	}

	return nil, fmt.Errorf("%w: missing target sink", dealer.ErrOutboundUnsupported)
}

func (d *CompositeSinkDispatcher) resolveSinkRef(ref dealer.EventSink) (dealer.SinkDispatcher, error) {
	if ref.ID != "" {
		route, exists := d.byID[ref.ID]
		if !exists {
			return nil, fmt.Errorf("%w: sink %s not found", dealer.ErrOutboundUnsupported, ref.ID)
		}
		if ref.Platform != "" && route.ref.Platform != ref.Platform {
			return nil, fmt.Errorf(
				"%w: sink %s platform mismatch: expected %s got %s",
				dealer.ErrOutboundUnsupported,
				ref.ID,
				ref.Platform,
				route.ref.Platform,
			)
		}

		return route.dispatcher, nil
	}

	ids := d.byPlatform[ref.Platform]
	switch len(ids) {
	case 0:
		return nil, fmt.Errorf("%w: no sink for platform %q", dealer.ErrOutboundUnsupported, ref.Platform)
	case 1:
		return d.byID[ids[0]].dispatcher, nil
	default:
		return nil, fmt.Errorf("%w: ambiguous sink for platform %s", dealer.ErrOutboundUnsupported, ref.Platform)
	}
}

var _ dealer.SinkDispatcher = (*CompositeSinkDispatcher)(nil)
