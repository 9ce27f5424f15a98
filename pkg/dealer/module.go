package dealer

import "context"

// EventHandler processes a single neutral event.
type EventHandler func(ctx context.Context, event *Event) error

// EventDispatcher accepts neutral events for dispatching into the kernel.
type EventDispatcher interface {
	// Publish submits an event to downstream subscribers.
	Publish(ctx context.Context, event *Event) error
}

// ModuleRuntime provides kernel facilities to modules during registration.
type ModuleRuntime interface {
	// Services exposes the service registry for dependency lookup.
	Services() ServiceRegistry
	// Subscribe registers an asynchronous event handler owned by the module.
	Subscribe(
		ctx context.Context,
		interest InterestSet,
		spec SubscriptionSpec,
		handler EventHandler,
	) (Subscription, error)
}

// ModuleHandler binds one declared capability to one subscription handler.
type ModuleHandler struct {
	// Capability declares what the handler consumes and which services it needs.
	Capability Capability
	// Subscription configures queueing for the handler.
	Subscription SubscriptionSpec
	// Handler processes matching events.
	Handler EventHandler
}

// ModuleSpec is the declarative registration contract of one module.
type ModuleSpec struct {
	// Handlers are subscribed by the kernel during registration.
	Handlers []ModuleHandler
	// AdditionalCapabilities declares capabilities without a kernel-managed handler.
	AdditionalCapabilities []Capability
	// Commands declares the commands owned by this module.
	Commands []CommandSpec
}

// Capabilities returns every capability declared by the spec.
func (s ModuleSpec) Capabilities() []Capability {
	capabilities := make([]Capability, 0, len(s.Handlers)+len(s.AdditionalCapabilities))
	for _, handler := range s.Handlers {
		capabilities = append(capabilities, handler.Capability)
	}
	capabilities = append(capabilities, s.AdditionalCapabilities...)

	return capabilities
}

// Module is a lifecycle-aware plugin contract.
//
// Modules must be concurrency-safe because handlers can run on multiple workers.
type Module interface {
	// Name returns a stable module identifier.
	Name() string
	// Spec returns the declarative handler and command registration.
	Spec() ModuleSpec
	// OnStart is called when the kernel begins runtime execution.
	OnStart(ctx context.Context) error
	// OnShutdown is called during orderly shutdown.
	OnShutdown(ctx context.Context) error
}

// ModuleRegistrar is implemented by modules that resolve dependencies at registration.
type ModuleRegistrar interface {
	// OnRegister is called once when the module is registered.
	OnRegister(ctx context.Context, runtime ModuleRuntime) error
}

// Driver adapts external platforms into neutral events.
//
// Drivers own transport/session concerns and must publish only dealer.Event.
type Driver interface {
	// Name returns a stable driver identifier.
	Name() string
	// Start starts consuming external updates and publishing neutral events.
	// It should return only after context cancellation or fatal error.
	Start(ctx context.Context, dispatcher EventDispatcher) error
	// Shutdown stops external resources that are not tied to Start context alone.
	Shutdown(ctx context.Context) error
}
