package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/internal/users"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/db"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/security"
)

// LocalProvider backs the identity contract with the relational users table
// and argon2 password hashes. Used for dev and self-hosted deployments where
// no external identity provider is configured.
type LocalProvider struct {
	repo     *users.Repository
	cfg      config.PasswordConfig
	notifier *Notifier
	now      func() time.Time
}

// NewLocalProvider wires the provider against the users repository.
func NewLocalProvider(repo *users.Repository, cfg config.PasswordConfig) (*LocalProvider, error) {
	if repo == nil {
		return nil, errors.New("users repository is required")
	}
	return &LocalProvider{
		repo:     repo,
		cfg:      cfg,
		notifier: NewNotifier(),
		now:      time.Now,
	}, nil
}

// VerifyCredentials checks the password hash stored for the email.
func (p *LocalProvider) VerifyCredentials(ctx context.Context, deviceID, email, password string) (*Identity, error) {
	user, err := p.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user record")
	}
	if !user.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "account is disabled")
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verifying password")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
	}

	_ = p.repo.UpdateLastLogin(ctx, user.ID, p.now())

	ident := localIdentity(user.ID.String(), user.Email, user.DisplayName)
	p.notifier.Publish(deviceID, ident)
	return ident, nil
}

// CreateIdentity registers a new local user with a hashed password.
func (p *LocalProvider) CreateIdentity(ctx context.Context, deviceID, email, password string) (*Identity, error) {
	hash, err := security.HashPassword(password, p.cfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hashing password")
	}

	user, err := p.repo.Create(ctx, users.CreateUserDTO{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an account with that email already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating user record")
	}

	ident := localIdentity(user.ID.String(), user.Email, user.DisplayName)
	p.notifier.Publish(deviceID, ident)
	return ident, nil
}

// SetProfile stores the display name on the user row. Avatar URLs live on the
// media side for local deployments, so only the name is applied here.
func (p *LocalProvider) SetProfile(ctx context.Context, identityID string, profile Profile) error {
	id, err := parseUserID(identityID)
	if err != nil {
		return err
	}
	if profile.DisplayName == "" {
		return nil
	}
	name := profile.DisplayName
	if _, err := p.repo.UpdateProfile(ctx, id, users.UpdateProfileDTO{DisplayName: &name}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating profile")
	}
	return nil
}

// SignOut has no provider-side state to clear; it only notifies subscribers.
func (p *LocalProvider) SignOut(ctx context.Context, deviceID, identityID string) error {
	p.notifier.Publish(deviceID, nil)
	return nil
}

// Subscribe registers a per-device change callback.
func (p *LocalProvider) Subscribe(deviceID string, fn func(*Identity)) func() {
	return p.notifier.Subscribe(deviceID, fn)
}

func parseUserID(identityID string) (uuid.UUID, error) {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid identity id")
	}
	return id, nil
}

func localIdentity(id, email, displayName string) *Identity {
	return &Identity{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
	}
}
