package cart

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

const storageKeySuffix = "cart"

// Registry hands out one cart manager per device and owns their lifecycle.
type Registry struct {
	mu       sync.Mutex
	managers map[string]*Manager

	store kv.Store
	logg  *logger.Logger
}

// NewRegistry builds an empty registry backed by the shared key-value store.
func NewRegistry(store kv.Store, logg *logger.Logger) (*Registry, error) {
	if store == nil {
		return nil, errors.New("kv store is required")
	}
	return &Registry{
		managers: make(map[string]*Manager),
		store:    store,
		logg:     logg,
	}, nil
}

// Manager returns the cart manager for the device, creating and rehydrating
// it on first use.
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

	m, err := NewManager(ctx, r.store, StorageKey(deviceID), r.logg)
	if err != nil {
		return nil, err
	}
	r.managers[deviceID] = m
	return m, nil
}

// Dispose drops the in-memory manager for the device. The persisted snapshot
// stays put so the next Manager call rehydrates it.
func (r *Registry) Dispose(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.managers, deviceID)
}

// StorageKey renders the fixed per-device cart key.
func StorageKey(deviceID string) string {
	return deviceID + ":" + storageKeySuffix
}
