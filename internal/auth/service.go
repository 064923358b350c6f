package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/internal/identity"
	"github.com/davidpalacios/shopline-backend/internal/session"
	"github.com/davidpalacios/shopline-backend/internal/users"
	pkgauth "github.com/davidpalacios/shopline-backend/pkg/auth"
	authsession "github.com/davidpalacios/shopline-backend/pkg/auth/session"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// Service orchestrates the per-device session managers with token issuance.
type Service interface {
	SignIn(ctx context.Context, deviceID string, req SignInRequest) (*AuthResult, error)
	SignUp(ctx context.Context, deviceID string, req SignUpRequest) (*AuthResult, error)
	SignOut(ctx context.Context, deviceID, accessID string) error
	Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error)
	Session(ctx context.Context, deviceID string) (*SessionView, error)
}

// RefreshSessions is the refresh token surface the service needs. Satisfied
// by pkg/auth/session.Manager.
type RefreshSessions interface {
	Generate(ctx context.Context, accessID string) (string, error)
	Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error)
	Revoke(ctx context.Context, accessID string) error
}

type service struct {
	sessions *session.Registry
	refresh  RefreshSessions
	users    *users.Repository
	jwtCfg   config.JWTConfig
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(sessions *session.Registry, refresh RefreshSessions, repo *users.Repository, jwtCfg config.JWTConfig, logg *logger.Logger) (Service, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session registry required")
	}
	if refresh == nil {
		return nil, fmt.Errorf("refresh session manager required")
	}
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		sessions: sessions,
		refresh:  refresh,
		users:    repo,
		jwtCfg:   jwtCfg,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) SignIn(ctx context.Context, deviceID string, req SignInRequest) (*AuthResult, error) {
	manager, err := s.sessions.Manager(ctx, deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolving session")
	}

	snap, err := manager.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, deviceID, snap)
}

func (s *service) SignUp(ctx context.Context, deviceID string, req SignUpRequest) (*AuthResult, error) {
	manager, err := s.sessions.Manager(ctx, deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolving session")
	}

	snap, err := manager.SignUp(ctx, req.Email, req.Password, req.DisplayName, req.AvatarURL)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, deviceID, snap)
}

// SignOut releases the device's session. Local state is already cleared by the
// session manager even when the provider call fails, so both errors are
// reported together.
func (s *service) SignOut(ctx context.Context, deviceID, accessID string) error {
	manager, err := s.sessions.Manager(ctx, deviceID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolving session")
	}

	providerErr := manager.SignOut(ctx)

	var revokeErr error
	if accessID != "" {
		revokeErr = s.refresh.Revoke(ctx, accessID)
	}

	if combined := multierr.Combine(providerErr, revokeErr); combined != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, combined, "sign-out incomplete")
	}
	return nil
}

func (s *service) Refresh(ctx context.Context, req RefreshRequest) (*TokenPair, error) {
	claims, err := pkgauth.ParseAccessTokenAllowExpired(s.jwtCfg, req.AccessToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid access token")
	}

	newAccessID, newRefreshToken, err := s.refresh.Rotate(ctx, claims.ID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, authsession.ErrInvalidRefreshToken) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid refresh token")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rotating refresh session")
	}

	accessToken, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID:   claims.UserID,
		Role:     claims.Role,
		DeviceID: claims.DeviceID,
		JTI:      newAccessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: newRefreshToken}, nil
}

func (s *service) Session(ctx context.Context, deviceID string) (*SessionView, error) {
	manager, err := s.sessions.Manager(ctx, deviceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "resolving session")
	}
	snap := manager.Snapshot()
	return sessionView(&snap), nil
}

func (s *service) issueTokens(ctx context.Context, deviceID string, snap *session.Snapshot) (*AuthResult, error) {
	if snap == nil || snap.Identity == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "session missing identity")
	}

	userID, err := s.resolveUserID(ctx, snap.Identity, snap.Role)
	if err != nil {
		return nil, err
	}

	accessID := authsession.NewAccessID()
	accessToken, err := pkgauth.MintAccessToken(s.jwtCfg, s.now(), pkgauth.AccessTokenPayload{
		UserID:   userID,
		Role:     snap.Role,
		DeviceID: deviceID,
		JTI:      accessID,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting access token")
	}

	refreshToken, err := s.refresh.Generate(ctx, accessID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "creating refresh session")
	}

	return &AuthResult{
		User:         identityView(userID, snap.Identity),
		Role:         snap.Role,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// resolveUserID maps a provider identity onto the local users table. Local
// identities already carry the row's UUID; external identities are mirrored
// into a row keyed by provider UID on first sign-in.
func (s *service) resolveUserID(ctx context.Context, ident *identity.Identity, role string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ident.ID); err == nil {
		return id, nil
	}

	user, err := s.users.FindByProviderUID(ctx, ident.ID)
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user record")
	}

	providerUID := ident.ID
	created, err := s.users.Create(ctx, users.CreateUserDTO{
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		ProviderUID: &providerUID,
		Role:        role,
	})
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mirroring user record")
	}
	return created.ID, nil
}
