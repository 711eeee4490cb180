package core

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

type fakeAdapter struct {
	provider Provider

	beginFn    func(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	exchangeFn func(ctx context.Context, req ExchangeRequest) (CredentialRecord, error)
	refreshFn  func(ctx context.Context, record CredentialRecord) (CredentialRecord, error)

	beginCalls    atomic.Int64
	exchangeCalls atomic.Int64
	refreshCalls  atomic.Int64
}

func (a *fakeAdapter) Provider() Provider {
	if a.provider == "" {
		return ProviderGCP
	}
	return a.provider
}

func (a *fakeAdapter) BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error) {
	a.beginCalls.Add(1)
	if a.beginFn != nil {
		return a.beginFn(ctx, req)
	}
	return BeginAuthResponse{
		URL:    "https://auth.example.com/authorize?state=" + req.State,
		State:  req.State,
		Scopes: append([]string(nil), req.Scopes...),
	}, nil
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, req ExchangeRequest) (CredentialRecord, error) {
	a.exchangeCalls.Add(1)
	if a.exchangeFn != nil {
		return a.exchangeFn(ctx, req)
	}
	return CredentialRecord{}, fmt.Errorf("fake adapter: exchange not configured")
}

func (a *fakeAdapter) Refresh(ctx context.Context, record CredentialRecord) (CredentialRecord, error) {
	a.refreshCalls.Add(1)
	if a.refreshFn != nil {
		return a.refreshFn(ctx, record)
	}
	return CredentialRecord{}, fmt.Errorf("fake adapter: refresh not configured")
}

func newTestManager(t *testing.T, store CredentialStore, adapter FlowAdapter, now time.Time) *Manager {
	t.Helper()
	manager, err := NewManager(Config{},
		WithCredentialStore(store),
		WithNow(func() time.Time { return now }),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if adapter != nil {
		if err := manager.RegisterAdapter(adapter); err != nil {
			t.Fatalf("register adapter: %v", err)
		}
	}
	return manager
}

func seedStoredCredential(t *testing.T, store CredentialStore, record CredentialRecord) StoredCredential {
	t.Helper()
	stored, err := store.Put(context.Background(), StoredCredential{Record: record})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return stored
}
