package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dealerbot/pkg/dealer"
)

// moduleRecord stores module metadata and subscriptions managed by the kernel.
type moduleRecord struct {
	name         string
	module       dealer.Module
	capabilities []dealer.Capability

	subMu         sync.Mutex
	subscriptions []dealer.Subscription
}

func (m *moduleRecord) addSubscription(subscription dealer.Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes and forgets every tracked subscription, so a
// second call is a no-op.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	subscriptions := m.subscriptions
	m.subscriptions = nil
	m.subMu.Unlock()

	var closeErr error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return closeErr
}

// moduleRuntime is the kernel-owned implementation of dealer.ModuleRuntime.
type moduleRuntime struct {
	moduleName string
	services   dealer.ServiceRegistry
	bus        dealer.EventBus
	record     *moduleRecord
}

// Services returns the kernel service registry visible to the module.
func (r *moduleRuntime) Services() dealer.ServiceRegistry {
	return r.services
}

// Subscribe registers a module-owned subscription after capability checks.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest dealer.InterestSet,
	spec dealer.SubscriptionSpec,
	handler dealer.EventHandler,
) (dealer.Subscription, error) {
	if spec.Name == "" {
		spec.Name = r.moduleName + "-subscription"
	}
	if err := assertSubscriptionAllowed(r.record.capabilities, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}
	r.record.addSubscription(subscription)

	return subscription, nil
}

// assertSubscriptionAllowed requires at least one declared capability to cover interest.
func assertSubscriptionAllowed(capabilities []dealer.Capability, interest dealer.InterestSet) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("%w: no declared capability", dealer.ErrInvalidSubscription)
	}
	for _, capability := range capabilities {
		if capability.Interest.Allows(interest) {
			return nil
		}
	}

	return fmt.Errorf("%w: interest not covered by declared capabilities", dealer.ErrInvalidSubscription)
}
