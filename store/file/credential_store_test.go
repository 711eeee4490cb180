package filestore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/security"
)

func testRecord(token string) core.CredentialRecord {
	return core.CredentialRecord{
		Principal:    "user@example.com",
		Provider:     core.ProviderGCP,
		Service:      core.ServiceIMAP,
		AccessToken:  token,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
		Scopes:       []string{"openid", "email"},
		Raw:          map[string]any{"token_type": "Bearer"},
	}
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record := testRecord("access-1")
	saved, err := store.Put(ctx, core.StoredCredential{Record: record})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if saved.Version != 1 {
		t.Fatalf("expected version 1, got %d", saved.Version)
	}

	loaded, found, err := store.Get(ctx, record.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found {
		t.Fatalf("expected record to exist")
	}
	if !reflect.DeepEqual(loaded.Record, record) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", loaded.Record, record)
	}
}

func TestCredentialStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	first, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	record := testRecord("access-1")
	if _, err := first.Put(ctx, core.StoredCredential{Record: record}); err != nil {
		t.Fatalf("put: %v", err)
	}

	second, err := New(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	loaded, found, err := second.Get(ctx, record.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || loaded.Record.AccessToken != "access-1" {
		t.Fatalf("expected record to survive reopen, got %+v found=%v", loaded, found)
	}
}

func TestCredentialStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record := testRecord("access-1")
	saved, err := store.Put(ctx, core.StoredCredential{Record: record})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	stale := core.StoredCredential{Record: testRecord("access-stale")}
	if _, err := store.Put(ctx, stale); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	updated, err := store.Put(ctx, core.StoredCredential{Record: testRecord("access-2"), Version: saved.Version})
	if err != nil {
		t.Fatalf("versioned put: %v", err)
	}
	if updated.Version != 2 {
		t.Fatalf("expected version 2, got %d", updated.Version)
	}
}

func TestCredentialStore_EncryptsAtRest(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	secrets, err := security.NewAppKeySecretProviderFromString("test-application-key")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	store, err := New(path, WithSecretProvider(secrets))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record := testRecord("access-secret")
	if _, err := store.Put(ctx, core.StoredCredential{Record: record}); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if bytes.Contains(raw, []byte("access-secret")) {
		t.Fatalf("token stored in cleartext")
	}

	loaded, found, err := store.Get(ctx, record.Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || loaded.Record.AccessToken != "access-secret" {
		t.Fatalf("expected decrypted record, got %+v found=%v", loaded, found)
	}
}

func TestCredentialStore_EncryptedPayloadNeedsProvider(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	secrets, err := security.NewAppKeySecretProviderFromString("test-application-key")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	writer, err := New(path, WithSecretProvider(secrets))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	record := testRecord("access-secret")
	if _, err := writer.Put(ctx, core.StoredCredential{Record: record}); err != nil {
		t.Fatalf("put: %v", err)
	}

	reader, err := New(path)
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if _, _, err := reader.Get(ctx, record.Key()); err == nil {
		t.Fatalf("expected error reading encrypted payload without a secret provider")
	}
}

func TestCredentialStore_MissingFileIsEmpty(t *testing.T) {
	store, err := New(filepath.Join(t.TempDir(), "never-written.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, found, err := store.Get(context.Background(), testRecord("x").Key())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected absent record")
	}
}

func TestNew_RequiresPath(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
