package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"testing"
)

func TestFilesystems(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected postgres and sqlite filesystems, got %d", len(filesystems))
	}

	byDialect := map[string]FilesystemSpec{}
	for _, spec := range filesystems {
		byDialect[spec.Dialect] = spec
	}
	for _, dialect := range []string{DialectPostgres, DialectSQLite} {
		spec, ok := byDialect[dialect]
		if !ok {
			t.Fatalf("missing filesystem for %s", dialect)
		}
		matches, err := fs.Glob(spec.FS, "*.up.sql")
		if err != nil {
			t.Fatalf("glob %s: %v", dialect, err)
		}
		if len(matches) == 0 {
			t.Fatalf("expected *.up.sql files for %s", dialect)
		}
	}
}

func TestRegister_InvokesPerDialect(t *testing.T) {
	seen := map[string]bool{}
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, label string, fsys fs.FS) error {
		if label != "go-credentials" {
			t.Fatalf("unexpected source label: %q", label)
		}
		if fsys == nil {
			t.Fatalf("nil filesystem for %s", dialect)
		}
		seen[dialect] = true
		return nil
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !seen[DialectPostgres] || !seen[DialectSQLite] {
		t.Fatalf("expected both dialects registered, got %v", seen)
	}
	if len(reg.Filesystems) != 2 {
		t.Fatalf("expected registration to carry both filesystems, got %d", len(reg.Filesystems))
	}
}

func TestRegister_RestrictsValidationTargets(t *testing.T) {
	seen := map[string]bool{}
	_, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		seen[dialect] = true
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if seen[DialectPostgres] {
		t.Fatalf("postgres should be skipped when only sqlite is targeted")
	}
	if !seen[DialectSQLite] {
		t.Fatalf("expected sqlite registration")
	}
}

func TestRegister_PropagatesCallbackError(t *testing.T) {
	boom := fmt.Errorf("runner rejected migration set")
	_, err := Register(context.Background(), func(_ context.Context, _ string, _ string, _ fs.FS) error {
		return boom
	})
	if err == nil {
		t.Fatalf("expected callback error to propagate")
	}
}

func TestRegister_RequiresCallback(t *testing.T) {
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil register function")
	}
}
