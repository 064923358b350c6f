package roles

import (
	"context"
	"errors"
	"testing"

	"github.com/davidpalacios/shopline-backend/pkg/kv"
)

func TestKVStoreRoundTrip(t *testing.T) {
	store, err := NewKVStore(kv.NewMemoryStore())
	if err != nil {
		t.Fatalf("new kv store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.GetRole(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := store.SetRole(ctx, "u1", RoleAdmin); err != nil {
		t.Fatalf("set role: %v", err)
	}

	role, err := store.GetRole(ctx, "u1")
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	if role != RoleAdmin {
		t.Fatalf("expected %q, got %q", RoleAdmin, role)
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(RoleAdmin) || !IsValid(RoleUser) {
		t.Fatal("expected canonical roles to be valid")
	}
	if IsValid("superuser") || IsValid("") {
		t.Fatal("expected unknown roles to be invalid")
	}
}
