// Package filestore keeps credentials in a single JSON file. It suits
// single-process deployments and local tooling; writes are atomic
// (temp file + rename) and the versioned compare-and-swap contract is the
// same one the SQL store enforces.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-credentials/core"
)

const storeFileMode = 0o600

type CredentialStore struct {
	mu      sync.Mutex
	path    string
	codec   core.CredentialCodec
	secrets core.SecretProvider
	nowFn   func() time.Time
}

type Option func(*CredentialStore)

func WithCodec(codec core.CredentialCodec) Option {
	return func(s *CredentialStore) {
		s.codec = codec
	}
}

// WithSecretProvider enables payload encryption at rest.
func WithSecretProvider(secrets core.SecretProvider) Option {
	return func(s *CredentialStore) {
		s.secrets = secrets
	}
}

func New(path string, opts ...Option) (*CredentialStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("filestore: path is required")
	}
	store := &CredentialStore{
		path:  path,
		codec: core.JSONCredentialCodec{},
		nowFn: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(store)
	}
	return store, nil
}

type fileEntry struct {
	Payload        []byte    `json:"payload"`
	PayloadFormat  string    `json:"payload_format"`
	PayloadVersion int       `json:"payload_version"`
	Encrypted      bool      `json:"encrypted"`
	Version        int       `json:"version"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type fileContents struct {
	Records map[string]fileEntry `json:"records"`
}

func (s *CredentialStore) Get(ctx context.Context, key core.CredentialKey) (core.StoredCredential, bool, error) {
	if s == nil {
		return core.StoredCredential{}, false, fmt.Errorf("filestore: credential store is not configured")
	}
	key = key.Normalized()
	if err := key.Validate(); err != nil {
		return core.StoredCredential{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return core.StoredCredential{}, false, err
	}
	entry, ok := contents.Records[key.String()]
	if !ok {
		return core.StoredCredential{}, false, nil
	}

	stored, err := s.entryToStored(ctx, entry)
	if err != nil {
		return core.StoredCredential{}, false, err
	}
	return stored, true, nil
}

func (s *CredentialStore) Put(ctx context.Context, stored core.StoredCredential) (core.StoredCredential, error) {
	if s == nil {
		return core.StoredCredential{}, fmt.Errorf("filestore: credential store is not configured")
	}
	record := stored.Record.Normalized(s.nowFn())
	if err := record.Validate(); err != nil {
		return core.StoredCredential{}, err
	}
	key := record.Key()

	payload, err := s.codec.Encode(record)
	if err != nil {
		return core.StoredCredential{}, err
	}
	encrypted := false
	if s.secrets != nil {
		sealed, sealErr := s.secrets.Encrypt(ctx, payload)
		if sealErr != nil {
			return core.StoredCredential{}, fmt.Errorf("filestore: encrypt credential payload: %w", sealErr)
		}
		payload = sealed
		encrypted = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return core.StoredCredential{}, err
	}

	currentVersion := 0
	if entry, ok := contents.Records[key.String()]; ok {
		currentVersion = entry.Version
	}
	if stored.Version != currentVersion {
		return core.StoredCredential{}, fmt.Errorf(
			"%w: %s is at version %d, write expected %d",
			core.ErrVersionConflict, key, currentVersion, stored.Version,
		)
	}

	now := s.nowFn()
	contents.Records[key.String()] = fileEntry{
		Payload:        payload,
		PayloadFormat:  s.codec.Format(),
		PayloadVersion: s.codec.Version(),
		Encrypted:      encrypted,
		Version:        currentVersion + 1,
		UpdatedAt:      now,
	}
	if err := s.save(contents); err != nil {
		return core.StoredCredential{}, err
	}

	return core.StoredCredential{
		Record:    record.Clone(),
		Version:   currentVersion + 1,
		UpdatedAt: now,
	}, nil
}

func (s *CredentialStore) entryToStored(ctx context.Context, entry fileEntry) (core.StoredCredential, error) {
	payload := entry.Payload
	if entry.Encrypted {
		if s.secrets == nil {
			return core.StoredCredential{}, fmt.Errorf("filestore: payload is encrypted but no secret provider is configured")
		}
		opened, err := s.secrets.Decrypt(ctx, payload)
		if err != nil {
			return core.StoredCredential{}, fmt.Errorf("filestore: decrypt credential payload: %w", err)
		}
		payload = opened
	}
	record, err := s.codec.Decode(payload)
	if err != nil {
		return core.StoredCredential{}, err
	}
	return core.StoredCredential{
		Record:    record,
		Version:   entry.Version,
		UpdatedAt: entry.UpdatedAt,
	}, nil
}

func (s *CredentialStore) load() (fileContents, error) {
	contents := fileContents{Records: map[string]fileEntry{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return contents, nil
		}
		return fileContents{}, fmt.Errorf("filestore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return contents, nil
	}
	if err := json.Unmarshal(data, &contents); err != nil {
		return fileContents{}, fmt.Errorf("filestore: parse %s: %w", s.path, err)
	}
	if contents.Records == nil {
		contents.Records = map[string]fileEntry{}
	}
	return contents, nil
}

func (s *CredentialStore) save(contents fileContents) error {
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore: encode %s: %w", s.path, err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("filestore: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("filestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: write temp file: %w", err)
	}
	if err := tmp.Chmod(storeFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: replace %s: %w", s.path, err)
	}
	return nil
}

var _ core.CredentialStore = (*CredentialStore)(nil)
