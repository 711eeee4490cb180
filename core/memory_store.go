package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryCredentialStore is the in-process CredentialStore. It enforces the
// same versioned compare-and-swap contract as the persistent backends, so
// tests against it exercise the real write semantics.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	entries map[CredentialKey]StoredCredential
	nowFn   func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		entries: map[CredentialKey]StoredCredential{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryCredentialStore) Get(_ context.Context, key CredentialKey) (StoredCredential, bool, error) {
	if s == nil {
		return StoredCredential{}, false, fmt.Errorf("core: credential store is not configured")
	}
	if err := key.Validate(); err != nil {
		return StoredCredential{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.entries[key.Normalized()]
	if !ok {
		return StoredCredential{}, false, nil
	}
	return stored.Clone(), true, nil
}

func (s *MemoryCredentialStore) Put(_ context.Context, stored StoredCredential) (StoredCredential, error) {
	if s == nil {
		return StoredCredential{}, fmt.Errorf("core: credential store is not configured")
	}
	if err := stored.Record.Validate(); err != nil {
		return StoredCredential{}, err
	}
	key := stored.Record.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	currentVersion := 0
	if current, exists := s.entries[key]; exists {
		currentVersion = current.Version
	}
	if stored.Version != currentVersion {
		return StoredCredential{}, fmt.Errorf(
			"%w: %s is at version %d, write expected %d",
			ErrVersionConflict, key, currentVersion, stored.Version,
		)
	}

	next := stored.Clone()
	next.Version = currentVersion + 1
	next.UpdatedAt = s.nowFn()
	s.entries[key] = next
	return next.Clone(), nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)
