package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"dealerbot/pkg/dealer"
)

// Kernel wires modules, drivers, and the event bus into one runnable bot.
type Kernel struct {
	cfg config

	bus      *EventBus
	services *ServiceRegistry

	mu          sync.RWMutex
	modules     map[string]*moduleRecord
	moduleOrder []string
	commands    map[string]commandRegistration
	drivers     map[string]dealer.Driver
	driverOrder []string

	runMu   sync.Mutex
	running bool
}

// New creates a new kernel runtime.
func New(options ...Option) *Kernel {
	cfg := defaultConfig()
	for _, option := range options {
		option(&cfg)
	}

	k := &Kernel{
		cfg:      cfg,
		bus:      NewEventBus(cfg.bus, cfg.onAsyncError),
		services: NewServiceRegistry(),
		modules:  make(map[string]*moduleRecord),
		commands: make(map[string]commandRegistration),
		drivers:  make(map[string]dealer.Driver),
	}
	if err := k.services.Register(dealer.ServiceCommandCatalog, &kernelCommandCatalog{kernel: k}); err != nil {
		cfg.onAsyncError(context.Background(), "register command catalog service", err)
	}

	return k
}

// EventBus exposes the kernel event bus to integration code.
func (k *Kernel) EventBus() dealer.EventBus {
	return k.bus
}

// Services exposes the kernel service registry.
func (k *Kernel) Services() dealer.ServiceRegistry {
	return k.services
}

// RegisterService registers a runtime service singleton.
func (k *Kernel) RegisterService(name string, service any) error {
	if err := k.services.Register(name, service); err != nil {
		return fmt.Errorf("register service %s: %w", name, err)
	}

	return nil
}

// RegisterModule validates a module spec, claims its commands, runs OnRegister,
// and subscribes its declared handlers. Any failure rolls the module back out.
func (k *Kernel) RegisterModule(ctx context.Context, module dealer.Module) error {
	if module == nil {
		return fmt.Errorf("register module: nil module")
	}
	name := module.Name()
	if name == "" {
		return fmt.Errorf("register module: empty module name")
	}
	spec := module.Spec()
	if err := validateModuleSpec(spec); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	record := &moduleRecord{
		name:         name,
		module:       module,
		capabilities: spec.Capabilities(),
	}
	if err := k.checkRequiredServices(record.capabilities); err != nil {
		return fmt.Errorf("register module %s: %w", name, err)
	}

	k.mu.Lock()
	if _, exists := k.modules[name]; exists {
		k.mu.Unlock()
		return fmt.Errorf("register module %s: %w", name, dealer.ErrModuleAlreadyRegistered)
	}
	k.modules[name] = record
	k.moduleOrder = append(k.moduleOrder, name)
	k.mu.Unlock()

	if err := k.registerModuleCommands(name, spec.Commands); err != nil {
		k.rollbackModule(ctx, record)
		return fmt.Errorf("register module %s: %w", name, err)
	}

	runtime := &moduleRuntime{
		moduleName: name,
		services:   k.services,
		bus:        k.bus,
		record:     record,
	}

	hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
	defer cancel()

	if registrar, ok := module.(dealer.ModuleRegistrar); ok {
		err := runSafely("module "+name+" OnRegister", func() error {
			return registrar.OnRegister(hookCtx, runtime)
		})
		if err != nil {
			k.rollbackModule(ctx, record)
			return fmt.Errorf("register module %s: %w", name, err)
		}
	}

	for index, declared := range spec.Handlers {
		subscription := declared.Subscription
		if subscription.Name == "" {
			subscription.Name = fmt.Sprintf("%s-handler-%d", name, index+1)
		}
		_, err := runtime.Subscribe(hookCtx, declared.Capability.Interest, subscription, declared.Handler)
		if err != nil {
			k.rollbackModule(ctx, record)
			return fmt.Errorf(
				"register module %s: handler %s for capability %s: %w",
				name,
				subscription.Name,
				declared.Capability.Name,
				err,
			)
		}
	}

	return nil
}

// RegisterDriver registers a platform driver.
func (k *Kernel) RegisterDriver(driver dealer.Driver) error {
	if driver == nil {
		return fmt.Errorf("register driver: nil driver")
	}
	name := driver.Name()
	if name == "" {
		return fmt.Errorf("register driver: empty name")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists := k.drivers[name]; exists {
		return fmt.Errorf("register driver %s: %w", name, dealer.ErrDriverAlreadyRegistered)
	}
	k.drivers[name] = driver
	k.driverOrder = append(k.driverOrder, name)

	return nil
}

// Run starts modules, runs drivers, and blocks until cancellation or the first
// fatal driver error. Shutdown always runs before Run returns.
func (k *Kernel) Run(ctx context.Context) error {
	k.runMu.Lock()
	if k.running {
		k.runMu.Unlock()
		return fmt.Errorf("kernel run: already running")
	}
	k.running = true
	k.runMu.Unlock()
	defer func() {
		k.runMu.Lock()
		k.running = false
		k.runMu.Unlock()
	}()

	if err := k.startModules(ctx); err != nil {
		return err
	}

	runCtx, stopDrivers := context.WithCancel(ctx)
	driverErr, waitDrivers := k.startDrivers(runCtx)

	var runErr error
	select {
	case <-ctx.Done():
		runErr = ctx.Err()
	case err := <-driverErr:
		runErr = err
	}

	stopDrivers()
	waitDrivers()

	shutdownErr := k.shutdown(ctx)
	if isContextCancellation(runErr) {
		runErr = nil
	}

	return errors.Join(runErr, shutdownErr)
}

func (k *Kernel) snapshotModules() []*moduleRecord {
	k.mu.RLock()
	defer k.mu.RUnlock()

	records := make([]*moduleRecord, 0, len(k.moduleOrder))
	for _, name := range k.moduleOrder {
		if record := k.modules[name]; record != nil {
			records = append(records, record)
		}
	}

	return records
}

func (k *Kernel) snapshotDrivers() []dealer.Driver {
	k.mu.RLock()
	defer k.mu.RUnlock()

	drivers := make([]dealer.Driver, 0, len(k.driverOrder))
	for _, name := range k.driverOrder {
		if driver := k.drivers[name]; driver != nil {
			drivers = append(drivers, driver)
		}
	}

	return drivers
}

// startModules invokes OnStart in registration order with per-module timeouts.
func (k *Kernel) startModules(ctx context.Context) error {
	for _, record := range k.snapshotModules() {
		hookCtx, cancel := context.WithTimeout(ctx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnStart", func() error {
			return record.module.OnStart(hookCtx)
		})
		cancel()
		if err != nil {
			return fmt.Errorf("start module %s: %w", record.name, err)
		}
	}

	return nil
}

// startDrivers runs every driver in its own goroutine. The returned channel
// delivers the first fatal driver error, or context.Canceled once all drivers
// have returned. The wait function blocks until drivers exit or the shutdown
// timeout elapses.
func (k *Kernel) startDrivers(ctx context.Context) (<-chan error, func()) {
	errs := make(chan error, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup

	dispatcher := k.newDriverDispatcher()
	for _, driver := range k.snapshotDrivers() {
		wg.Add(1)
		go func(adapter dealer.Driver) {
			defer wg.Done()
			err := runSafely("driver "+adapter.Name()+" Start", func() error {
				return adapter.Start(ctx, dispatcher)
			})
			if err == nil || isContextCancellation(err) {
				return
			}
			select {
			case errs <- fmt.Errorf("run driver %s: %w", adapter.Name(), err):
			default:
			}
		}(driver)
	}

	go func() {
		wg.Wait()
		close(done)
		select {
		case errs <- context.Canceled:
		default:
		}
	}()

	wait := func() {
		select {
		case <-done:
		case <-time.After(k.cfg.shutdownTimeout):
		}
	}

	return errs, wait
}

// shutdown tears down drivers, modules, and the bus inside one bounded window
// that survives parent cancellation.
func (k *Kernel) shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.shutdownTimeout)
	defer cancel()

	var shutdownErr error

	drivers := k.snapshotDrivers()
	for index := len(drivers) - 1; index >= 0; index-- {
		driver := drivers[index]
		err := runSafely("driver "+driver.Name()+" Shutdown", func() error {
			return driver.Shutdown(shutdownCtx)
		})
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown driver %s: %w", driver.Name(), err))
		}
	}

	records := k.snapshotModules()
	for index := len(records) - 1; index >= 0; index-- {
		record := records[index]
		if err := record.closeSubscriptions(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s subscriptions: %w", record.name, err))
		}
		hookCtx, hookCancel := context.WithTimeout(shutdownCtx, k.cfg.moduleHookTimeout)
		err := runSafely("module "+record.name+" OnShutdown", func() error {
			return record.module.OnShutdown(hookCtx)
		})
		hookCancel()
		if err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown module %s: %w", record.name, err))
		}
	}

	if err := k.bus.Close(shutdownCtx); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if shutdownErr != nil {
		return fmt.Errorf("kernel shutdown: %w", shutdownErr)
	}

	return nil
}

// rollbackModule removes a partially registered module, best effort.
func (k *Kernel) rollbackModule(ctx context.Context, record *moduleRecord) {
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.cfg.moduleHookTimeout)
	defer cancel()

	if err := record.closeSubscriptions(rollbackCtx); err != nil {
		k.cfg.onAsyncError(rollbackCtx, "rollback module "+record.name, err)
	}
	k.unregisterModuleCommands(record.name)

	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.modules, record.name)
	filtered := k.moduleOrder[:0]
	for _, name := range k.moduleOrder {
		if name != record.name {
			filtered = append(filtered, name)
		}
	}
	k.moduleOrder = filtered
}

// checkRequiredServices fails when a capability names a service nobody registered.
func (k *Kernel) checkRequiredServices(capabilities []dealer.Capability) error {
	for _, capability := range capabilities {
		for _, serviceName := range capability.RequiredServices {
			if _, err := k.services.Resolve(serviceName); err != nil {
				return fmt.Errorf("capability %s requires service %s: %w", capability.Name, serviceName, err)
			}
		}
	}

	return nil
}

// validateModuleSpec ensures declarative module definitions are coherent.
func validateModuleSpec(spec dealer.ModuleSpec) error {
	seenCapabilities := make(map[string]struct{}, len(spec.Handlers)+len(spec.AdditionalCapabilities))
	seenSubscriptions := make(map[string]struct{}, len(spec.Handlers))

	for index, handler := range spec.Handlers {
		name := handler.Capability.Name
		if name == "" {
			return fmt.Errorf("module handler %d: empty capability name", index)
		}
		if _, exists := seenCapabilities[name]; exists {
			return fmt.Errorf("module handler %d: duplicate capability name %s", index, name)
		}
		seenCapabilities[name] = struct{}{}

		if handler.Handler == nil {
			return fmt.Errorf("module handler %s: nil handler", name)
		}
		if subscription := handler.Subscription.Name; subscription != "" {
			if _, exists := seenSubscriptions[subscription]; exists {
				return fmt.Errorf("module handler %s: duplicate subscription name %s", name, subscription)
			}
			seenSubscriptions[subscription] = struct{}{}
		}
	}

	for index, capability := range spec.AdditionalCapabilities {
		if capability.Name == "" {
			return fmt.Errorf("additional capability %d: empty capability name", index)
		}
		if _, exists := seenCapabilities[capability.Name]; exists {
			return fmt.Errorf("additional capability %d: duplicate capability name %s", index, capability.Name)
		}
		seenCapabilities[capability.Name] = struct{}{}
	}

	return nil
}

// isContextCancellation reports whether err is a context-driven termination signal.
func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
