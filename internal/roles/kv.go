package roles

import (
	"context"
	"errors"

	"github.com/davidpalacios/shopline-backend/pkg/kv"
)

const keyPrefix = "role:"

// KVStore keeps role records in the shared key-value store. Used for local
// deployments and as the session manager's rehydration cache.
type KVStore struct {
	store kv.Store
}

// NewKVStore wraps the key-value store.
func NewKVStore(store kv.Store) (*KVStore, error) {
	if store == nil {
		return nil, errors.New("kv store is required")
	}
	return &KVStore{store: store}, nil
}

// GetRole reads the role record for the identity.
func (s *KVStore) GetRole(ctx context.Context, identityID string) (string, error) {
	role, err := s.store.Get(ctx, keyPrefix+identityID)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if role == "" {
		return "", ErrNotFound
	}
	return role, nil
}

// SetRole writes the role record for the identity.
func (s *KVStore) SetRole(ctx context.Context, identityID, role string) error {
	return s.store.Set(ctx, keyPrefix+identityID, role)
}
