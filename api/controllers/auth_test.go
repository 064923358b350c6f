package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/davidpalacios/shopline-backend/api/middleware"
	authsvc "github.com/davidpalacios/shopline-backend/internal/auth"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
)

type stubAuthService struct {
	result   *authsvc.AuthResult
	pair     *authsvc.TokenPair
	view     *authsvc.SessionView
	err      error
	signOuts []string
}

func (s *stubAuthService) SignIn(_ context.Context, deviceID string, _ authsvc.SignInRequest) (*authsvc.AuthResult, error) {
	return s.result, s.err
}

func (s *stubAuthService) SignUp(_ context.Context, deviceID string, _ authsvc.SignUpRequest) (*authsvc.AuthResult, error) {
	return s.result, s.err
}

func (s *stubAuthService) SignOut(_ context.Context, deviceID, accessID string) error {
	s.signOuts = append(s.signOuts, deviceID+":"+accessID)
	return s.err
}

func (s *stubAuthService) Refresh(context.Context, authsvc.RefreshRequest) (*authsvc.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubAuthService) Session(context.Context, string) (*authsvc.SessionView, error) {
	return s.view, s.err
}

func TestAuthSignInSuccess(t *testing.T) {
	result := &authsvc.AuthResult{
		User:         authsvc.IdentityView{ID: uuid.New(), Email: "ana@example.com"},
		Role:         "user",
		AccessToken:  "access",
		RefreshToken: "refresh",
	}
	handler := AuthSignIn(&stubAuthService{result: result}, nil)

	req := deviceRequest(http.MethodPost, "/v1/auth/sign-in",
		`{"email":"ana@example.com","password":"hunter2"}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data authsvc.AuthResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.AccessToken != "access" {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestAuthSignInRejectsBadEmail(t *testing.T) {
	handler := AuthSignIn(&stubAuthService{}, nil)

	req := deviceRequest(http.MethodPost, "/v1/auth/sign-in",
		`{"email":"not-an-email","password":"hunter2"}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAuthSignInMapsUnauthorized(t *testing.T) {
	stub := &stubAuthService{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid email or password")}
	handler := AuthSignIn(stub, nil)

	req := deviceRequest(http.MethodPost, "/v1/auth/sign-in",
		`{"email":"ana@example.com","password":"wrong"}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSignUpReturns201(t *testing.T) {
	result := &authsvc.AuthResult{Role: "user", AccessToken: "access", RefreshToken: "refresh"}
	handler := AuthSignUp(&stubAuthService{result: result}, nil)

	req := deviceRequest(http.MethodPost, "/v1/auth/sign-up",
		`{"email":"ana@example.com","password":"hunter2hunter2"}`)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAuthSignOutPassesContext(t *testing.T) {
	stub := &stubAuthService{}
	handler := AuthSignOut(stub, nil)

	req := deviceRequest(http.MethodPost, "/v1/auth/sign-out", "")
	req = req.WithContext(middleware.WithAccessID(req.Context(), "jti-1"))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(stub.signOuts) != 1 || stub.signOuts[0] != "device-1:jti-1" {
		t.Fatalf("sign out calls = %v", stub.signOuts)
	}
}

func TestAuthRefreshRequiresBothTokens(t *testing.T) {
	handler := AuthRefresh(&stubAuthService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh",
		strings.NewReader(`{"access_token":"only-one"}`))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAuthSessionReturnsSnapshot(t *testing.T) {
	view := &authsvc.SessionView{Role: "user"}
	handler := AuthSession(&stubAuthService{view: view}, nil)

	req := deviceRequest(http.MethodGet, "/v1/auth/session", "")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	var envelope struct {
		Data authsvc.SessionView `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.Role != "user" {
		t.Fatalf("role = %q", envelope.Data.Role)
	}
}
