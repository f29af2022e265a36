package store

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
)

func TestCreateAPIKey(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	first, rawFirst, err := s.CreateAPIKey(ctx, "admin", []string{"models:read"})
	if err != nil {
		t.Fatalf("CreateAPIKey() failed: %v", err)
	}
	if !slices.Equal(first.Scopes, []string{MasterScope}) {
		t.Errorf("first key scopes = %v, want [%s]", first.Scopes, MasterScope)
	}
	if !strings.HasPrefix(rawFirst, "pron_") || len(rawFirst) != len("pron_")+64 {
		t.Errorf("unexpected raw key format %q", rawFirst)
	}

	second, rawSecond, err := s.CreateAPIKey(ctx, "reader", []string{"models:read", "stats:read"})
	if err != nil {
		t.Fatalf("CreateAPIKey() failed: %v", err)
	}
	if rawSecond == rawFirst {
		t.Error("two keys share the same raw value")
	}

	got, err := s.LookupAPIKey(ctx, rawSecond)
	if err != nil {
		t.Fatalf("LookupAPIKey() failed: %v", err)
	}
	if got.ID != second.ID || got.Description != "reader" {
		t.Errorf("LookupAPIKey() = %+v, want id %d", got, second.ID)
	}
	if !got.HasScope("stats:read") || got.HasScope("models:write") {
		t.Errorf("unexpected scopes %v", got.Scopes)
	}

	n, err := s.CountAPIKeys(ctx)
	if err != nil || n != 2 {
		t.Errorf("CountAPIKeys() = %d, %v; want 2", n, err)
	}
}

func TestCreateAPIKeyConcurrentFirstKeys(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	created := make(chan APIKey, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Losing writers may fail with a busy error; they must never succeed as master.
			key, _, err := s.CreateAPIKey(ctx, "concurrente", []string{"models:read"})
			if err == nil {
				created <- key
			}
		}()
	}
	wg.Wait()
	close(created)

	masters, total := 0, 0
	for key := range created {
		total++
		if key.HasScope(MasterScope) {
			masters++
		}
	}
	if total == 0 {
		t.Fatal("no key was created")
	}
	if masters != 1 {
		t.Errorf("%d keys were given the master scope, want exactly 1", masters)
	}

	keys, err := s.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys() failed: %v", err)
	}
	stored := 0
	for _, key := range keys {
		if slices.Contains(key.Scopes, MasterScope) {
			stored++
		}
	}
	if stored != 1 || len(keys) != total {
		t.Errorf("stored %d keys with %d masters, want %d keys with 1 master", len(keys), stored, total)
	}
}

func TestLookupUnknownAPIKey(t *testing.T) {
	_, s := setupTestDB(t)
	_, err := s.LookupAPIKey(context.Background(), "pron_nope")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

func TestDeleteAPIKey(t *testing.T) {
	_, s := setupTestDB(t)
	ctx := context.Background()

	master, _, err := s.CreateAPIKey(ctx, "admin", nil)
	if err != nil {
		t.Fatalf("CreateAPIKey() failed: %v", err)
	}
	other, _, err := s.CreateAPIKey(ctx, "writer", []string{"models:write"})
	if err != nil {
		t.Fatalf("CreateAPIKey() failed: %v", err)
	}

	if err = s.DeleteAPIKey(ctx, master.ID); !errors.Is(err, ErrPrimaryKey) {
		t.Errorf("deleting the master key: got %v, want ErrPrimaryKey", err)
	}
	if err = s.DeleteAPIKey(ctx, other.ID); err != nil {
		t.Errorf("DeleteAPIKey() failed: %v", err)
	}
	if err = s.DeleteAPIKey(ctx, other.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("deleting a missing key: got %v, want sql.ErrNoRows", err)
	}

	keys, err := s.ListAPIKeys(ctx)
	if err != nil {
		t.Fatalf("ListAPIKeys() failed: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != master.ID {
		t.Errorf("ListAPIKeys() = %+v, want only the master key", keys)
	}
}

func TestAPIKeyHasScope(t *testing.T) {
	testCases := []struct {
		scopes []string
		scope  string
		want   bool
	}{
		{scopes: []string{MasterScope}, scope: "auth:manage", want: true},
		{scopes: []string{"models:read"}, scope: "models:read", want: true},
		{scopes: []string{"models:read"}, scope: "models:write", want: false},
		{scopes: nil, scope: "models:read", want: false},
	}
	for _, tc := range testCases {
		if got := (APIKey{Scopes: tc.scopes}).HasScope(tc.scope); got != tc.want {
			t.Errorf("APIKey{%v}.HasScope(%q) = %v, want %v", tc.scopes, tc.scope, got, tc.want)
		}
	}
}
