package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/davidpalacios/shopline-backend/pkg/config"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	firebaseclient "github.com/davidpalacios/shopline-backend/pkg/firebase"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

const signInEndpoint = "https://identitytoolkit.googleapis.com/v1/accounts:signInWithPassword"

// FirebaseProvider backs the identity contract with Firebase Auth. Password
// verification goes through the Identity Toolkit REST surface (the Admin SDK
// cannot check passwords); everything else uses the Admin SDK.
type FirebaseProvider struct {
	client     *firebaseclient.Client
	httpClient *http.Client
	cfg        config.FirebaseConfig
	notifier   *Notifier
	logg       *logger.Logger
}

// NewFirebaseProvider wires the provider against an established Firebase app.
func NewFirebaseProvider(client *firebaseclient.Client, cfg config.FirebaseConfig, logg *logger.Logger) (*FirebaseProvider, error) {
	if client == nil {
		return nil, errors.New("firebase client is required")
	}
	if strings.TrimSpace(cfg.WebAPIKey) == "" {
		return nil, errors.New("firebase web api key is required")
	}
	return &FirebaseProvider{
		client:     client,
		httpClient: &http.Client{Timeout: cfg.SignInTimeout},
		cfg:        cfg,
		notifier:   NewNotifier(),
		logg:       logg,
	}, nil
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID     string `json:"localId"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Error       *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// VerifyCredentials checks the email/password pair and notifies the device's
// subscribers on success.
func (p *FirebaseProvider) VerifyCredentials(ctx context.Context, deviceID, email, password string) (*Identity, error) {
	payload, err := json.Marshal(signInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding sign-in request")
	}

	endpoint := fmt.Sprintf("%s?key=%s", signInEndpoint, p.cfg.WebAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building sign-in request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "identity provider unreachable")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reading identity provider response")
	}

	var parsed signInResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decoding identity provider response")
	}

	if resp.StatusCode != http.StatusOK || parsed.LocalID == "" {
		return nil, classifySignInError(parsed)
	}

	ident := &Identity{
		ID:          parsed.LocalID,
		Email:       parsed.Email,
		DisplayName: parsed.DisplayName,
	}

	// The Admin record carries the avatar; the REST response does not.
	if record, err := p.client.Auth().GetUser(ctx, parsed.LocalID); err == nil {
		ident.DisplayName = record.DisplayName
		ident.AvatarURL = record.PhotoURL
	} else if p.logg != nil {
		p.logg.Warn(ctx, "fetching identity record after sign-in failed")
	}

	p.notifier.Publish(deviceID, ident)
	return ident, nil
}

// CreateIdentity registers a new Firebase user and notifies the device's
// subscribers.
func (p *FirebaseProvider) CreateIdentity(ctx context.Context, deviceID, email, password string) (*Identity, error) {
	params := (&firebaseauth.UserToCreate{}).Email(email).Password(password)
	record, err := p.client.Auth().CreateUser(ctx, params)
	if err != nil {
		return nil, classifyAdminError(err)
	}

	ident := &Identity{
		ID:    record.UID,
		Email: record.Email,
	}
	p.notifier.Publish(deviceID, ident)
	return ident, nil
}

// SetProfile updates display name and avatar on the Firebase user record.
func (p *FirebaseProvider) SetProfile(ctx context.Context, identityID string, profile Profile) error {
	params := &firebaseauth.UserToUpdate{}
	changed := false
	if profile.DisplayName != "" {
		params = params.DisplayName(profile.DisplayName)
		changed = true
	}
	if profile.AvatarURL != "" {
		params = params.PhotoURL(profile.AvatarURL)
		changed = true
	}
	if !changed {
		return nil
	}
	if _, err := p.client.Auth().UpdateUser(ctx, identityID, params); err != nil {
		return classifyAdminError(err)
	}
	return nil
}

// SignOut revokes the user's refresh tokens and notifies the device's
// subscribers with an absent identity.
func (p *FirebaseProvider) SignOut(ctx context.Context, deviceID, identityID string) error {
	err := p.client.Auth().RevokeRefreshTokens(ctx, identityID)
	p.notifier.Publish(deviceID, nil)
	if err != nil {
		return classifyAdminError(err)
	}
	return nil
}

// Subscribe registers a per-device change callback.
func (p *FirebaseProvider) Subscribe(deviceID string, fn func(*Identity)) func() {
	return p.notifier.Subscribe(deviceID, fn)
}

func classifySignInError(resp signInResponse) error {
	message := ""
	if resp.Error != nil {
		message = resp.Error.Message
	}
	switch {
	case strings.Contains(message, "EMAIL_NOT_FOUND"),
		strings.Contains(message, "INVALID_PASSWORD"),
		strings.Contains(message, "INVALID_LOGIN_CREDENTIALS"),
		strings.Contains(message, "USER_DISABLED"):
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")
	case strings.Contains(message, "TOO_MANY_ATTEMPTS"):
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "too many sign-in attempts, try again later")
	case message == "":
		return pkgerrors.New(pkgerrors.CodeDependency, "identity provider rejected the sign-in")
	default:
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign-in rejected: "+message)
	}
}

func classifyAdminError(err error) error {
	switch {
	case firebaseauth.IsEmailAlreadyExists(err):
		return pkgerrors.New(pkgerrors.CodeConflict, "an account with that email already exists")
	case firebaseauth.IsUserNotFound(err):
		return pkgerrors.New(pkgerrors.CodeNotFound, "identity not found")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "identity provider call failed")
	}
}
