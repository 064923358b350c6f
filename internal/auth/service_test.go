package auth

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/internal/identity"
	"github.com/davidpalacios/shopline-backend/internal/roles"
	"github.com/davidpalacios/shopline-backend/internal/session"
	"github.com/davidpalacios/shopline-backend/internal/users"
	pkgauth "github.com/davidpalacios/shopline-backend/pkg/auth"
	authsession "github.com/davidpalacios/shopline-backend/pkg/auth/session"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/db/models"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
	"github.com/davidpalacios/shopline-backend/pkg/kv"
	"github.com/davidpalacios/shopline-backend/pkg/logger"
)

type fakeRefreshSessions struct {
	tokens map[string]string
	seq    int
}

func newFakeRefreshSessions() *fakeRefreshSessions {
	return &fakeRefreshSessions{tokens: map[string]string{}}
}

func (f *fakeRefreshSessions) Generate(_ context.Context, accessID string) (string, error) {
	f.seq++
	token := fmt.Sprintf("refresh-%d", f.seq)
	f.tokens[accessID] = token
	return token, nil
}

func (f *fakeRefreshSessions) Rotate(_ context.Context, oldAccessID, provided string) (string, string, error) {
	stored, ok := f.tokens[oldAccessID]
	if !ok || stored != provided {
		return "", "", authsession.ErrInvalidRefreshToken
	}
	delete(f.tokens, oldAccessID)
	f.seq++
	newAccessID := fmt.Sprintf("access-%d", f.seq)
	token := fmt.Sprintf("refresh-%d", f.seq)
	f.tokens[newAccessID] = token
	return newAccessID, token, nil
}

func (f *fakeRefreshSessions) Revoke(_ context.Context, accessID string) error {
	delete(f.tokens, accessID)
	return nil
}

type authFixture struct {
	svc     Service
	refresh *fakeRefreshSessions
	repo    *users.Repository
	cfg     config.JWTConfig
}

func testPasswordConfig() config.PasswordConfig {
	return config.PasswordConfig{
		ArgonMemoryKB:    1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	repo := users.NewRepository(conn)
	provider, err := identity.NewLocalProvider(repo, testPasswordConfig())
	if err != nil {
		t.Fatalf("local provider: %v", err)
	}

	store := kv.NewMemoryStore()
	roleStore, err := roles.NewKVStore(store)
	if err != nil {
		t.Fatalf("role store: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "auth-test", Output: io.Discard})
	sessions, err := session.NewRegistry(provider, roleStore, store, logg)
	if err != nil {
		t.Fatalf("session registry: %v", err)
	}

	refresh := newFakeRefreshSessions()
	cfg := config.JWTConfig{Secret: "secret", Issuer: "shopline", ExpirationMinutes: 15}
	svc, err := NewService(sessions, refresh, repo, cfg, logg)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &authFixture{svc: svc, refresh: refresh, repo: repo, cfg: cfg}
}

func TestSignUpThenSignInIssuesTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	signUp, err := f.svc.SignUp(ctx, "device-1", SignUpRequest{
		Email:       "ana@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if signUp.Role != roles.Default {
		t.Fatalf("role = %q, want %q", signUp.Role, roles.Default)
	}
	if signUp.AccessToken == "" || signUp.RefreshToken == "" {
		t.Fatal("expected both tokens on sign-up")
	}

	signIn, err := f.svc.SignIn(ctx, "device-2", SignInRequest{
		Email:    "ana@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if signIn.User.ID != signUp.User.ID {
		t.Fatalf("user id changed between sign-up and sign-in")
	}

	claims, err := pkgauth.ParseAccessToken(f.cfg, signIn.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != signIn.User.ID {
		t.Fatalf("claims user id = %s, want %s", claims.UserID, signIn.User.ID)
	}
	if claims.DeviceID != "device-2" {
		t.Fatalf("claims device = %q, want device-2", claims.DeviceID)
	}
}

func TestSignInInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.SignIn(context.Background(), "device-1", SignInRequest{
		Email:    "nobody@example.com",
		Password: "wrong-password",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	signUp, err := f.svc.SignUp(ctx, "device-1", SignUpRequest{
		Email:    "ana@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	pair, err := f.svc.Refresh(ctx, RefreshRequest{
		AccessToken:  signUp.AccessToken,
		RefreshToken: signUp.RefreshToken,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.AccessToken == signUp.AccessToken {
		t.Fatal("access token should rotate")
	}

	// The old refresh token is burned.
	_, err = f.svc.Refresh(ctx, RefreshRequest{
		AccessToken:  signUp.AccessToken,
		RefreshToken: signUp.RefreshToken,
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestSignOutRevokesRefreshSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	signUp, err := f.svc.SignUp(ctx, "device-1", SignUpRequest{
		Email:    "ana@example.com",
		Password: "hunter2hunter2",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}

	claims, err := pkgauth.ParseAccessToken(f.cfg, signUp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if err := f.svc.SignOut(ctx, "device-1", claims.ID); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if _, ok := f.refresh.tokens[claims.ID]; ok {
		t.Fatal("refresh session should be revoked")
	}

	view, err := f.svc.Session(ctx, "device-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if view.Identity != nil {
		t.Fatal("session should be anonymous after sign-out")
	}
	if view.Role != roles.Default {
		t.Fatalf("role = %q, want default", view.Role)
	}
}

func TestSessionReportsSnapshot(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SignUp(ctx, "device-1", SignUpRequest{
		Email:    "ana@example.com",
		Password: "hunter2hunter2",
	}); err != nil {
		t.Fatalf("sign up: %v", err)
	}

	view, err := f.svc.Session(ctx, "device-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if view.Identity == nil || view.Identity.Email != "ana@example.com" {
		t.Fatalf("unexpected identity %+v", view.Identity)
	}
	if view.Settling {
		t.Fatal("session should not be settling at rest")
	}
}

func TestRefreshRejectsForgedAccessToken(t *testing.T) {
	f := newAuthFixture(t)

	otherCfg := config.JWTConfig{Secret: "other-secret", Issuer: "shopline", ExpirationMinutes: 15}
	forged, err := pkgauth.MintAccessToken(otherCfg, time.Now(), pkgauth.AccessTokenPayload{
		UserID: uuid.New(), Role: "user",
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	_, err = f.svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  forged,
		RefreshToken: "refresh-1",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}
