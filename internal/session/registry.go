package session

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/davidpalacios/shopline-backend/internal/identity"
	"github.com/davidpalacios/shopline-backend/internal/roles"
	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// Registry hands out one session manager per device and owns their lifecycle.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager

	provider  identity.Provider
	roleStore roles.Store
	cache     kv.Store
	logg      *logger.Logger
}

// NewRegistry builds an empty registry over the shared collaborators.
func NewRegistry(provider identity.Provider, roleStore roles.Store, cache kv.Store, logg *logger.Logger) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if roleStore == nil {
		return nil, errors.New("role store is required")
	}
	if cache == nil {
		return nil, errors.New("kv store is required")
	}
	return &Registry{
		managers:  make(map[string]*Manager),
		provider:  provider,
		roleStore: roleStore,
		cache:     cache,
		logg:      logg,
	}, nil
}

// Manager returns the session manager for the device, creating it on first
// use.
func (r *Registry) Manager(ctx context.Context, deviceID string) (*Manager, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.managers[deviceID]; ok {
		return m, nil
	}

	m, err := NewManager(ctx, deviceID, r.provider, r.roleStore, r.cache, r.logg)
	if err != nil {
		return nil, err
	}
	r.managers[deviceID] = m
	return m, nil
}

// Dispose closes and drops the manager for the device. The cached session
// snapshot stays put so a later Manager call rehydrates it.
func (r *Registry) Dispose(deviceID string) {
	r.mu.Lock()
	m, ok := r.managers[deviceID]
	delete(r.managers, deviceID)
	r.mu.Unlock()

	if ok {
		m.Close()
	}
}

// Close disposes every manager. Called at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	managers := make([]*Manager, 0, len(r.managers))
	for _, m := range r.managers {
		managers = append(managers, m)
	}
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	for _, m := range managers {
		m.Close()
	}
}
