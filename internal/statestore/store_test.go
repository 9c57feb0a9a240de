// Echolog - Voice Recording Ingestion and Memory Pipeline
// Copyright 2026 Avery K. (averyk)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/averyk/echolog

package statestore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestGetSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrKeyNotFound", err)
	}

	if err := store.Set(ctx, "k1", []byte("v1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := store.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Errorf("Get = %q, want v1", got)
	}
}

func TestSetNX(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	set, err := store.SetNX(ctx, "marker", []byte("1"), time.Hour)
	if err != nil {
		t.Fatalf("SetNX: %v", err)
	}
	if !set {
		t.Fatal("first SetNX should set the key")
	}

	set, err = store.SetNX(ctx, "marker", []byte("2"), time.Hour)
	if err != nil {
		t.Fatalf("SetNX: %v", err)
	}
	if set {
		t.Fatal("second SetNX must not overwrite")
	}

	got, err := store.Get(ctx, "marker")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "1" {
		t.Errorf("value = %q, want original value 1", got)
	}
}

func TestExistsDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ok, err := store.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists(missing) = %v, %v", ok, err)
	}

	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ok, err = store.Exists(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Exists(present) = %v, %v", ok, err)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = store.Exists(ctx, "k")
	if err != nil || ok {
		t.Fatalf("Exists(deleted) = %v, %v", ok, err)
	}
}

func TestScanPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entries := map[string]string{
		"perf:1:rec-a": "a",
		"perf:2:rec-b": "b",
		"other:x":      "x",
	}
	for k, v := range entries {
		if err := store.Set(ctx, k, []byte(v)); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}

	got, err := store.ScanPrefix(ctx, "perf:")
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ScanPrefix returned %d entries, want 2", len(got))
	}
	if string(got["perf:1:rec-a"]) != "a" || string(got["perf:2:rec-b"]) != "b" {
		t.Errorf("ScanPrefix values wrong: %v", got)
	}
}

func TestIncrement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	n, err := store.Increment(ctx, "counter:runs", 1)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n != 1 {
		t.Errorf("first increment = %d, want 1", n)
	}

	n, err = store.Increment(ctx, "counter:runs", 5)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n != 6 {
		t.Errorf("second increment = %d, want 6", n)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	in := payload{Name: "sync", Count: 3}
	if err := store.SetJSON(ctx, "j", in, 0); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out payload
	if err := store.GetJSON(ctx, "j", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}

	if err := store.GetJSON(ctx, "missing", &out); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("GetJSON(missing) error = %v, want ErrKeyNotFound", err)
	}
}

func TestTTLExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetWithTTL(ctx, "short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL: %v", err)
	}

	ok, err := store.Exists(ctx, "short")
	if err != nil || !ok {
		t.Fatalf("key should exist before expiry: %v, %v", ok, err)
	}

	time.Sleep(120 * time.Millisecond)

	ok, err = store.Exists(ctx, "short")
	if err != nil {
		t.Fatalf("Exists after expiry: %v", err)
	}
	if ok {
		t.Error("key should have expired")
	}
}
