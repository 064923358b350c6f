package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/davidpalacios/shopline-backend/internal/identity"
	"github.com/davidpalacios/shopline-backend/internal/roles"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

const storageKeySuffix = "session"

// Snapshot is the point-in-time session state handed to consumers. Identity
// is nil while anonymous; Role is empty whenever Identity is nil.
type Snapshot struct {
	Identity *identity.Identity
	Role     string
	Settling bool
}

// Manager owns one device's session: the cached identity, the resolved role,
// and the settling flag. It is the only writer of that state; every mutation
// happens under the mutex and external calls never hold it.
type Manager struct {
	mu       sync.Mutex
	ident    *identity.Identity
	role     string
	settling bool

	deviceID    string
	provider    identity.Provider
	roleStore   roles.Store
	cache       kv.Store
	logg        *logger.Logger
	unsubscribe func()
	closeOnce   sync.Once
}

type cachedSession struct {
	Identity identity.Identity `json:"identity"`
	Role     string            `json:"role"`
}

// NewManager builds a session manager for the device, rehydrates any cached
// session, and registers the single provider subscription. The settling flag
// clears once rehydration resolves, whether or not a cached session existed.
func NewManager(ctx context.Context, deviceID string, provider identity.Provider, roleStore roles.Store, cache kv.Store, logg *logger.Logger) (*Manager, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return nil, errors.New("device id is required")
	}
	if provider == nil {
		return nil, errors.New("identity provider is required")
	}
	if roleStore == nil {
		return nil, errors.New("role store is required")
	}
	if cache == nil {
		return nil, errors.New("kv store is required")
	}

	m := &Manager{
		settling:  true,
		deviceID:  deviceID,
		provider:  provider,
		roleStore: roleStore,
		cache:     cache,
		logg:      logg,
	}

	m.rehydrate(ctx)
	m.unsubscribe = provider.Subscribe(deviceID, func(ident *identity.Identity) {
		m.handleProviderEvent(context.Background(), ident)
	})

	return m, nil
}

func (m *Manager) rehydrate(ctx context.Context) {
	defer func() {
		m.mu.Lock()
		m.settling = false
		m.mu.Unlock()
	}()

	raw, err := m.cache.Get(ctx, StorageKey(m.deviceID))
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			m.warn(ctx, "session rehydration read failed, starting anonymous", err)
		}
		return
	}

	var cached cachedSession
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		m.warn(ctx, "session rehydration parse failed, starting anonymous", err)
		return
	}
	if cached.Identity.ID == "" {
		return
	}

	role := cached.Role
	if !roles.IsValid(role) {
		role = roles.Default
	}

	m.mu.Lock()
	ident := cached.Identity
	m.ident = &ident
	m.role = role
	m.mu.Unlock()
}

// handleProviderEvent applies a provider change notification: an absent
// identity clears to anonymous unconditionally; a present identity resolves
// its role, failing open to the least-privileged default.
func (m *Manager) handleProviderEvent(ctx context.Context, ident *identity.Identity) {
	if ident == nil {
		m.clearLocal(ctx)
		return
	}

	m.mu.Lock()
	if m.ident != nil && m.ident.ID == ident.ID && m.role != "" {
		// Same identity already resolved; refresh the cached copy only.
		m.ident = cloneIdentity(ident)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	role := m.resolveRole(ctx, ident.ID)
	m.setAuthenticated(ctx, ident, role)
}

// resolveRole fetches the role record, failing open to the default role when
// the record is absent or the store is unreachable.
func (m *Manager) resolveRole(ctx context.Context, identityID string) string {
	role, err := m.roleStore.GetRole(ctx, identityID)
	if err != nil {
		if !errors.Is(err, roles.ErrNotFound) {
			m.warn(ctx, "role fetch failed, falling back to default role", err)
		}
		return roles.Default
	}
	if !roles.IsValid(role) {
		return roles.Default
	}
	return role
}

// SignIn verifies the credentials with the provider and resolves the role.
// The settling flag is released on every path.
func (m *Manager) SignIn(ctx context.Context, email, password string) (*Snapshot, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	m.setSettling(true)
	defer m.setSettling(false)

	ident, err := m.provider.VerifyCredentials(ctx, m.deviceID, email, password)
	if err != nil {
		return nil, err
	}

	// The provider notification already resolved the role; this is a no-op
	// unless the subscription was released.
	m.handleProviderEvent(ctx, ident)

	snapshot := m.Snapshot()
	return &snapshot, nil
}

// SignUp creates the identity, writes the initial role record, and applies
// the optional profile fields. A failed role write does not fail the sign-up:
// the session still resolves with the default role and the failure is logged.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName, avatarURL string) (*Snapshot, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email and password are required")
	}

	m.setSettling(true)
	defer m.setSettling(false)

	ident, err := m.provider.CreateIdentity(ctx, m.deviceID, email, password)
	if err != nil {
		return nil, err
	}

	if err := m.roleStore.SetRole(ctx, ident.ID, roles.Default); err != nil {
		// The identity already exists; surface via logs only and keep the
		// in-memory default role.
		m.warn(ctx, "initial role write failed during sign-up", err)
	}

	if displayName != "" || avatarURL != "" {
		if err := m.provider.SetProfile(ctx, ident.ID, identity.Profile{
			DisplayName: displayName,
			AvatarURL:   avatarURL,
		}); err != nil {
			m.warn(ctx, "profile write failed during sign-up", err)
		} else {
			ident.DisplayName = displayName
			if avatarURL != "" {
				ident.AvatarURL = avatarURL
			}
		}
	}

	m.setAuthenticated(ctx, ident, roles.Default)

	snapshot := m.Snapshot()
	return &snapshot, nil
}

// SignOut delegates to the provider and clears local state to anonymous even
// when the provider call fails; the error is still returned to the caller.
func (m *Manager) SignOut(ctx context.Context) error {
	m.setSettling(true)
	defer m.setSettling(false)

	m.mu.Lock()
	ident := m.ident
	m.mu.Unlock()
	if ident == nil {
		return nil
	}

	err := m.provider.SignOut(ctx, m.deviceID, ident.ID)

	// The provider notification clears local state; repeat it here so a
	// failed provider call still signs the device out locally.
	m.clearLocal(ctx)
	return err
}

// CurrentRole returns the cached role without blocking. While unresolved or
// anonymous it returns the fail-open default.
func (m *Manager) CurrentRole() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ident == nil || m.role == "" {
		return roles.Default
	}
	return m.role
}

// Snapshot returns a point-in-time copy of the session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Identity: cloneIdentity(m.ident),
		Role:     m.role,
		Settling: m.settling,
	}
}

// Close releases the provider subscription. Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		if m.unsubscribe != nil {
			m.unsubscribe()
		}
	})
}

func (m *Manager) setAuthenticated(ctx context.Context, ident *identity.Identity, role string) {
	m.mu.Lock()
	m.ident = cloneIdentity(ident)
	m.role = role
	m.mu.Unlock()

	m.persist(ctx)
}

func (m *Manager) clearLocal(ctx context.Context) {
	m.mu.Lock()
	m.ident = nil
	m.role = ""
	m.mu.Unlock()

	if err := m.cache.Del(ctx, StorageKey(m.deviceID)); err != nil {
		m.warn(ctx, "session cache clear failed", err)
	}
}

func (m *Manager) persist(ctx context.Context) {
	m.mu.Lock()
	if m.ident == nil {
		m.mu.Unlock()
		return
	}
	cached := cachedSession{Identity: *m.ident, Role: m.role}
	m.mu.Unlock()

	payload, err := json.Marshal(cached)
	if err != nil {
		m.warn(ctx, "session serialization failed", err)
		return
	}
	if err := m.cache.Set(ctx, StorageKey(m.deviceID), string(payload)); err != nil {
		m.warn(ctx, "session persist failed", err)
	}
}

func (m *Manager) setSettling(value bool) {
	m.mu.Lock()
	m.settling = value
	m.mu.Unlock()
}

func (m *Manager) warn(ctx context.Context, msg string, err error) {
	if m.logg == nil {
		return
	}
	ctx = m.logg.WithDeviceID(ctx, m.deviceID)
	m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), msg)
}

func cloneIdentity(ident *identity.Identity) *identity.Identity {
	if ident == nil {
		return nil
	}
	copied := *ident
	return &copied
}

// StorageKey renders the fixed per-device session cache key.
func StorageKey(deviceID string) string {
	return deviceID + ":" + storageKeySuffix
}
