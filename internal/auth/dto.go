package auth

import (
	"github.com/google/uuid"

	"github.com/davidpalacios/shopline-backend/internal/identity"
	"github.com/davidpalacios/shopline-backend/internal/session"
)

// SignInRequest is the credentials payload accepted by the sign-in endpoint.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUpRequest is the registration payload.
type SignUpRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"display_name,omitempty" validate:"omitempty,max=120"`
	AvatarURL   string `json:"avatar_url,omitempty" validate:"omitempty,url"`
}

// RefreshRequest carries the expired access token and its refresh token.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// IdentityView is the public shape of an authenticated identity.
type IdentityView struct {
	ID          uuid.UUID `json:"id"`
	ProviderUID string    `json:"provider_uid,omitempty"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
}

// TokenPair bundles the freshly minted tokens.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// AuthResult is returned by sign-in and sign-up.
type AuthResult struct {
	User         IdentityView `json:"user"`
	Role         string       `json:"role"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// SessionIdentity is the identity portion of a session snapshot. The ID is
// the provider's identifier, which is only a local UUID in local mode.
type SessionIdentity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// SessionView mirrors the session manager snapshot for clients.
type SessionView struct {
	Identity *SessionIdentity `json:"identity,omitempty"`
	Role     string           `json:"role"`
	Settling bool             `json:"settling"`
}

func sessionView(snap *session.Snapshot) *SessionView {
	view := &SessionView{Role: snap.Role, Settling: snap.Settling}
	if snap.Identity != nil {
		view.Identity = &SessionIdentity{
			ID:          snap.Identity.ID,
			Email:       snap.Identity.Email,
			DisplayName: snap.Identity.DisplayName,
			AvatarURL:   snap.Identity.AvatarURL,
		}
	}
	return view
}

func identityView(userID uuid.UUID, ident *identity.Identity) IdentityView {
	view := IdentityView{
		ID:          userID,
		Email:       ident.Email,
		DisplayName: ident.DisplayName,
		AvatarURL:   ident.AvatarURL,
	}
	if ident.ID != userID.String() {
		view.ProviderUID = ident.ID
	}
	return view
}
