package session

import (
	"context"
	"testing"

	"github.com/davidpalacios/shopline-backend/internal/roles"
	"github.com/davidpalacios/shopline-backend/pkg/kv"
)

func TestRegistryReturnsSameManagerPerDevice(t *testing.T) {
	registry, err := NewRegistry(newFakeProvider(), newFakeRoleStore(), kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer registry.Close()
	ctx := context.Background()

	first, err := registry.Manager(ctx, "device-1")
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	second, err := registry.Manager(ctx, "device-1")
	if err != nil {
		t.Fatalf("manager again: %v", err)
	}
	if first != second {
		t.Fatal("expected the same manager instance per device")
	}
}

func TestRegistryDisposeRehydratesCachedSession(t *testing.T) {
	provider := newFakeProvider()
	provider.addUser("u-admin", "admin@example.com", "pass")
	store := newFakeRoleStore()
	store.roles["u-admin"] = roles.RoleAdmin

	registry, err := NewRegistry(provider, store, kv.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	defer registry.Close()
	ctx := context.Background()

	m, err := registry.Manager(ctx, "device-1")
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	if _, err := m.SignIn(ctx, "admin@example.com", "pass"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	registry.Dispose("device-1")

	reloaded, err := registry.Manager(ctx, "device-1")
	if err != nil {
		t.Fatalf("manager after dispose: %v", err)
	}
	if reloaded == m {
		t.Fatal("expected a fresh manager after dispose")
	}
	snapshot := reloaded.Snapshot()
	if snapshot.Identity == nil || snapshot.Identity.ID != "u-admin" {
		t.Fatalf("expected rehydrated identity, got %+v", snapshot.Identity)
	}
	if snapshot.Role != roles.RoleAdmin {
		t.Fatalf("expected rehydrated role, got %q", snapshot.Role)
	}
}
