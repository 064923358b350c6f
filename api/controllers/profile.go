package controllers

import (
	"net/http"

	"github.com/davidpalacios/shopline-backend/api/middleware"
	"github.com/davidpalacios/shopline-backend/api/responses"
	"github.com/davidpalacios/shopline-backend/api/validators"
	usersvc "github.com/davidpalacios/shopline-backend/internal/users"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

type updateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" validate:"omitempty,max=120"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=32"`
	AvatarURL   *string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

type profileResponse struct {
	User *usersvc.UserDTO `json:"user"`
	Role string           `json:"role"`
}

// ProfileGet returns the authenticated user's profile.
func ProfileGet(svc usersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.Get(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, profileResponse{
			User: user,
			Role: middleware.RoleFromContext(r.Context()),
		})
	}
}

// ProfileUpdate applies a partial profile update.
func ProfileUpdate(svc usersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "profile service unavailable"))
			return
		}

		userID, err := currentUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateProfileRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := svc.UpdateProfile(r.Context(), userID, usersvc.UpdateProfileInput{
			DisplayName: body.DisplayName,
			Phone:       body.Phone,
			AvatarURL:   body.AvatarURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, profileResponse{
			User: user,
			Role: middleware.RoleFromContext(r.Context()),
		})
	}
}
