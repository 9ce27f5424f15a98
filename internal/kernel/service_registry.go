package kernel

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"dealerbot/pkg/dealer"
)

// ServiceRegistry is the in-memory dealer.ServiceRegistry used by the kernel.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[string]any)}
}

// Register binds service to name. Names are trimmed and must be unique.
func (r *ServiceRegistry) Register(name string, service any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("register service: empty name")
	}
	if service == nil {
		return fmt.Errorf("register service %s: nil service", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("register service %s: %w", name, dealer.ErrServiceAlreadyRegistered)
	}
	r.services[name] = service

	return nil
}

// Resolve returns the service bound to name.
func (r *ServiceRegistry) Resolve(name string) (any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("resolve service: empty name")
	}

	r.mu.RLock()
	service, exists := r.services[name]
	r.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("resolve service %s: %w", name, dealer.ErrServiceNotFound)
	}

	return service, nil
}

// Names lists registered service names in sorted order.
func (r *ServiceRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)

	return names
}
