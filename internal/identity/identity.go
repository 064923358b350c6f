package identity

import "context"

// Identity is the externally issued user record cached by the session manager.
type Identity struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
}

// Profile carries the optional fields settable after identity creation.
type Profile struct {
	DisplayName string
	AvatarURL   string
}

// Provider is the external identity surface the session manager delegates to.
// Change notifications fire per device: a nil identity means signed out.
// Implementations classify failures with pkg/errors codes so callers can map
// them to user-facing responses.
type Provider interface {
	VerifyCredentials(ctx context.Context, deviceID, email, password string) (*Identity, error)
	CreateIdentity(ctx context.Context, deviceID, email, password string) (*Identity, error)
	SetProfile(ctx context.Context, identityID string, profile Profile) error
	SignOut(ctx context.Context, deviceID, identityID string) error
	Subscribe(deviceID string, fn func(*Identity)) (unsubscribe func())
}
