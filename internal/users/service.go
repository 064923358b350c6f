package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// ProfileSync pushes profile changes to the identity provider. Wired with an
// adapter over the identity package to keep this package provider-agnostic.
type ProfileSync interface {
	SyncProfile(ctx context.Context, identityID, displayName, avatarURL string) error
}

// Service exposes the profile operations of the current user.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*UserDTO, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error)
}

// UpdateProfileInput carries optional profile mutations.
type UpdateProfileInput struct {
	DisplayName *string
	Phone       *string
	AvatarURL   *string
}

type service struct {
	repo *Repository
	sync ProfileSync
	logg *logger.Logger
}

// NewService builds the profile service. The profile sync is optional.
func NewService(repo *Repository, sync ProfileSync, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, sync: sync, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user")
	}
	return FromModel(user), nil
}

// UpdateProfile writes the relational row first, then pushes the change to
// the identity provider. A provider failure is logged but does not undo the
// local update.
func (s *service) UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*UserDTO, error) {
	if input.DisplayName != nil && strings.TrimSpace(*input.DisplayName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "display name cannot be blank")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading user")
	}

	updated, err := s.repo.UpdateProfile(ctx, userID, UpdateProfileDTO{
		DisplayName: input.DisplayName,
		Phone:       input.Phone,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "updating profile")
	}

	if s.sync != nil && (input.DisplayName != nil || input.AvatarURL != nil) {
		identityID := user.ID.String()
		if user.ProviderUID != nil {
			identityID = *user.ProviderUID
		}
		displayName := updated.DisplayName
		avatarURL := ""
		if input.AvatarURL != nil {
			avatarURL = *input.AvatarURL
		}
		if err := s.sync.SyncProfile(ctx, identityID, displayName, avatarURL); err != nil {
			warnCtx := s.logg.WithUserID(ctx, userID.String())
			warnCtx = s.logg.WithField(warnCtx, "error", err.Error())
			s.logg.Warn(warnCtx, "provider profile sync failed")
		}
	}

	return FromModel(updated), nil
}
