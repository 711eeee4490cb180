package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryOAuthStateStore_SaveAndConsume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOAuthStateStore(time.Minute)

	record := OAuthStateRecord{
		State:       "state-1",
		Provider:    ProviderGCP,
		Service:     ServiceIMAP,
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"openid"},
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}

	consumed, err := store.Consume(ctx, "state-1")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed.Provider != ProviderGCP || consumed.Service != ServiceIMAP {
		t.Fatalf("unexpected record: %+v", consumed)
	}

	// Second redemption must fail: states are single-use.
	if _, err := store.Consume(ctx, "state-1"); !errors.Is(err, ErrCsrfValidationFailed) {
		t.Fatalf("expected ErrCsrfValidationFailed on replay, got %v", err)
	}
}

func TestMemoryOAuthStateStore_UnknownState(t *testing.T) {
	store := NewMemoryOAuthStateStore(time.Minute)
	if _, err := store.Consume(context.Background(), "never-issued"); !errors.Is(err, ErrCsrfValidationFailed) {
		t.Fatalf("expected ErrCsrfValidationFailed, got %v", err)
	}
}

func TestMemoryOAuthStateStore_ExpiredState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryOAuthStateStore(time.Minute)

	record := OAuthStateRecord{
		State:     "state-expired",
		Provider:  ProviderGCP,
		Service:   ServiceIMAP,
		CreatedAt: time.Now().UTC().Add(-time.Hour),
		ExpiresAt: time.Now().UTC().Add(-30 * time.Minute),
	}
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Consume(ctx, "state-expired"); !errors.Is(err, ErrCsrfValidationFailed) {
		t.Fatalf("expected ErrCsrfValidationFailed, got %v", err)
	}
}

func TestGenerateOAuthState(t *testing.T) {
	first, err := generateOAuthState()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := generateOAuthState()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if first == "" || first == second {
		t.Fatalf("expected unique non-empty states, got %q and %q", first, second)
	}
}
