package provider

import (
	"sort"
	"sync"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

// BackendFactory creates a provisioning backend bound to deps.
type BackendFactory func(deps Deps) Backend

var (
	registryMu sync.RWMutex
	registry   = make(map[model.HandlerType]BackendFactory)
)

// RegisterBackendType registers the factory for a handler type.
// e.g. RegisterBackendType(model.HandlerEC2Fleet, func(d Deps) Backend { return &EC2Fleet{deps: d} })
func RegisterBackendType(handler model.HandlerType, factory BackendFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[handler]; dup {
		panic("RegisterBackendType called twice for " + handler.String())
	}
	registry[handler] = factory
}

// NewBackend creates the backend registered for handler. Unknown handlers
// never fall back to a default.
func NewBackend(handler model.HandlerType, deps Deps) (Backend, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[handler]
	if !ok {
		return nil, &model.UnsupportedHandlerError{Handler: handler.String()}
	}
	return factory(deps), nil
}

// Handlers lists the registered handler types in sorted order.
func Handlers() []model.HandlerType {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]model.HandlerType, 0, len(registry))
	for h := range registry {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func IsRegistered(handler model.HandlerType) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[handler]
	return ok
}
