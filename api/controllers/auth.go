package controllers

import (
	"net/http"

	"github.com/davidpalacios/shopline-backend/api/middleware"
	"github.com/davidpalacios/shopline-backend/api/responses"
	"github.com/davidpalacios/shopline-backend/api/validators"
	authsvc "github.com/davidpalacios/shopline-backend/internal/auth"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

// AuthSignIn verifies credentials and opens the device's session.
func AuthSignIn(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		deviceID := middleware.DeviceIDFromContext(r.Context())

		var body authsvc.SignInRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SignIn(r.Context(), deviceID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

// AuthSignUp registers a new identity and opens the device's session.
func AuthSignUp(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		deviceID := middleware.DeviceIDFromContext(r.Context())

		var body authsvc.SignUpRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SignUp(r.Context(), deviceID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// AuthSignOut ends the device's session and revokes the refresh session.
func AuthSignOut(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		deviceID := middleware.DeviceIDFromContext(r.Context())
		accessID := middleware.AccessIDFromContext(r.Context())

		if err := svc.SignOut(r.Context(), deviceID, accessID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "signed out"})
	}
}

// AuthRefresh rotates the refresh session and mints a new token pair.
func AuthRefresh(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		var body authsvc.RefreshRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pair, err := svc.Refresh(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, pair)
	}
}

// AuthSession reports the device's current session snapshot.
func AuthSession(svc authsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable"))
			return
		}

		deviceID := middleware.DeviceIDFromContext(r.Context())

		view, err := svc.Session(r.Context(), deviceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, view)
	}
}
