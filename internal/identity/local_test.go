package identity

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/davidpalacios/shopline-backend/internal/users"
	"github.com/davidpalacios/shopline-backend/pkg/config"
	"github.com/davidpalacios/shopline-backend/pkg/db/models"
	pkgerrors "github.com/davidpalacios/shopline-backend/pkg/errors"
)

func newLocalProvider(t *testing.T) *LocalProvider {
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

	cfg := config.PasswordConfig{
		ArgonMemoryKB:    1024,
		ArgonTime:        1,
		ArgonParallelism: 1,
		ArgonSaltLen:     16,
		ArgonKeyLen:      32,
	}
	provider, err := NewLocalProvider(users.NewRepository(conn), cfg)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestLocalProviderCreateAndVerify(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()

	var events []*Identity
	provider.Subscribe("device-1", func(id *Identity) { events = append(events, id) })

	created, err := provider.CreateIdentity(ctx, "device-1", "ana@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if created.Email != "ana@example.com" {
		t.Fatalf("unexpected email %q", created.Email)
	}

	verified, err := provider.VerifyCredentials(ctx, "device-1", "ana@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("verify credentials: %v", err)
	}
	if verified.ID != created.ID {
		t.Fatalf("expected identity %s, got %s", created.ID, verified.ID)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 change events, got %d", len(events))
	}
}

func TestLocalProviderRejectsBadPassword(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()

	if _, err := provider.CreateIdentity(ctx, "device-1", "ana@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("create identity: %v", err)
	}

	_, err := provider.VerifyCredentials(ctx, "device-1", "ana@example.com", "wrong")
	if err == nil {
		t.Fatal("expected credential rejection")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestLocalProviderRejectsUnknownEmail(t *testing.T) {
	provider := newLocalProvider(t)

	_, err := provider.VerifyCredentials(context.Background(), "device-1", "missing@example.com", "pass")
	if err == nil {
		t.Fatal("expected credential rejection")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestLocalProviderDuplicateEmailConflicts(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()

	if _, err := provider.CreateIdentity(ctx, "device-1", "ana@example.com", "s3cret-pass"); err != nil {
		t.Fatalf("create identity: %v", err)
	}

	_, err := provider.CreateIdentity(ctx, "device-1", "ana@example.com", "other-pass")
	if err == nil {
		t.Fatal("expected duplicate account error")
	}
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestLocalProviderSignOutNotifiesAbsent(t *testing.T) {
	provider := newLocalProvider(t)
	ctx := context.Background()

	created, err := provider.CreateIdentity(ctx, "device-1", "ana@example.com", "s3cret-pass")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}

	var last *Identity
	seen := false
	provider.Subscribe("device-1", func(id *Identity) {
		last = id
		seen = true
	})

	if err := provider.SignOut(ctx, "device-1", created.ID); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if !seen || last != nil {
		t.Fatalf("expected an absent-identity event, seen=%v last=%+v", seen, last)
	}
}
