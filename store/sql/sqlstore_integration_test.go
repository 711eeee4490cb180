package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-credentials/core"
	credentialmigrations "github.com/goliatone/go-credentials/migrations"
	"github.com/goliatone/go-credentials/security"
	sqlstore "github.com/goliatone/go-credentials/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-credentials-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:credentials-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = credentialmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != credentialmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, credentialmigrations.WithValidationTargets(credentialmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func testRecord(token string) core.CredentialRecord {
	return core.CredentialRecord{
		Principal:    "user@example.com",
		Provider:     core.ProviderGCP,
		Service:      core.ServiceIMAP,
		AccessToken:  token,
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
		Scopes:       []string{"openid", "email"},
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"credential_records",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "credential_records" {
		t.Fatalf("expected credential_records table, got %q", tableName)
	}
}

func TestCredentialStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CredentialStore()
	if store == nil {
		t.Fatalf("expected credential store from factory")
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
	if loaded.Record.AccessToken != "access-1" || loaded.Record.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected record: %+v", loaded.Record)
	}
	if !loaded.Record.ExpiresAt.Equal(record.ExpiresAt) {
		t.Fatalf("expires at %v, want %v", loaded.Record.ExpiresAt, record.ExpiresAt)
	}
	if strings.Join(loaded.Record.Scopes, " ") != "openid email" {
		t.Fatalf("unexpected scopes: %v", loaded.Record.Scopes)
	}
}

func TestCredentialStore_EnforcesVersioning(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CredentialStore()

	record := testRecord("access-1")
	first, err := store.Put(ctx, core.StoredCredential{Record: record})
	if err != nil {
		t.Fatalf("initial put: %v", err)
	}

	// A writer still holding version 0 must lose.
	if _, err := store.Put(ctx, core.StoredCredential{Record: testRecord("access-stale")}); !errors.Is(err, core.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	second, err := store.Put(ctx, core.StoredCredential{Record: testRecord("access-2"), Version: first.Version})
	if err != nil {
		t.Fatalf("versioned put: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	var rowCount int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM credential_records WHERE principal = ? AND provider = ? AND service = ?",
		record.Principal, string(record.Provider), string(record.Service),
	).Scan(ctx, &rowCount); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rowCount != 1 {
		t.Fatalf("expected a single row per key, got %d", rowCount)
	}
}

func TestCredentialStore_EncryptsPayloadAtRest(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	secrets, err := security.NewAppKeySecretProviderFromString("integration-test-key")
	if err != nil {
		t.Fatalf("new secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithSecretProvider(secrets))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	store := factory.CredentialStore()

	record := testRecord("access-secret")
	if _, err := store.Put(ctx, core.StoredCredential{Record: record}); err != nil {
		t.Fatalf("put: %v", err)
	}

	var payload []byte
	if err := client.DB().NewRaw(
		"SELECT payload FROM credential_records WHERE principal = ?",
		record.Principal,
	).Scan(ctx, &payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if strings.Contains(string(payload), "access-secret") {
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

func TestCredentialStore_MissingRecord(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}

	key := core.CredentialKey{Principal: "nobody@example.com", Provider: core.ProviderGCP, Service: core.ServiceIMAP}
	_, found, err := factory.CredentialStore().Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected absent record")
	}
}
