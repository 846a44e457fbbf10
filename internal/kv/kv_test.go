package kv

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory[payload]()

	if err := store.Set(ctx, "a", payload{Name: "alice", Count: 3}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if got.Name != "alice" || got.Count != 3 {
		t.Fatalf("unexpected value: %#v", got)
	}

	if _, ok, _ := store.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "a"); ok {
		t.Fatal("expected key gone after delete")
	}
}

func TestRedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	store := NewRedis[payload](client, "test", 0)

	if err := store.Set(ctx, "a", payload{Name: "alice", Count: 3}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "a")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if got.Name != "alice" || got.Count != 3 {
		t.Fatalf("unexpected value: %#v", got)
	}

	if _, ok, _ := store.Get(ctx, "missing"); ok {
		t.Fatal("expected missing key")
	}
}

func TestRedisKeysStripPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	store := NewRedis[payload](client, "sess", 0)
	for _, k := range []string{"one", "two", "three"} {
		if err := store.Set(ctx, k, payload{Name: k}); err != nil {
			t.Fatalf("set %s failed: %v", k, err)
		}
	}

	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatalf("keys failed: %v", err)
	}
	sort.Strings(keys)
	want := []string{"one", "three", "two"}
	if len(keys) != len(want) {
		t.Fatalf("unexpected keys: %#v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("unexpected keys: %#v", keys)
		}
	}
}
