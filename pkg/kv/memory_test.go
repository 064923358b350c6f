package kv

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got %v", err)
	}

	if err := store.Set(ctx, "cart:device-1", `{"lines":[]}`); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	value, err := store.Get(ctx, "cart:device-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if value != `{"lines":[]}` {
		t.Fatalf("unexpected value %q", value)
	}

	if err := store.Del(ctx, "cart:device-1", "unknown"); err != nil {
		t.Fatalf("del failed: %v", err)
	}
	if _, err := store.Get(ctx, "cart:device-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
