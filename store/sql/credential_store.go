// Package sqlstore persists credentials in SQL via bun. Writes are
// versioned compare-and-swap updates executed in a transaction, matching
// the core.CredentialStore contract.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-credentials/core"
)

type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRow]
	codec   core.CredentialCodec
	secrets core.SecretProvider
}

func (s *CredentialStore) Get(ctx context.Context, key core.CredentialKey) (core.StoredCredential, bool, error) {
	if s == nil || s.repo == nil {
		return core.StoredCredential{}, false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = key.Normalized()
	if err := key.Validate(); err != nil {
		return core.StoredCredential{}, false, err
	}

	records, _, err := s.repo.List(ctx,
		repository.SelectBy("principal", "=", key.Principal),
		repository.SelectBy("provider", "=", string(key.Provider)),
		repository.SelectBy("service", "=", string(key.Service)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.StoredCredential{}, false, err
	}
	if len(records) == 0 {
		return core.StoredCredential{}, false, nil
	}

	stored, err := s.rowToStored(ctx, records[0])
	if err != nil {
		return core.StoredCredential{}, false, err
	}
	return stored, true, nil
}

func (s *CredentialStore) Put(ctx context.Context, stored core.StoredCredential) (core.StoredCredential, error) {
	if s == nil || s.repo == nil || s.db == nil {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record := stored.Record.Normalized(time.Now())
	if err := record.Validate(); err != nil {
		return core.StoredCredential{}, err
	}
	key := record.Key()

	payload, encrypted, err := s.encodePayload(ctx, record)
	if err != nil {
		return core.StoredCredential{}, err
	}

	now := time.Now().UTC()
	var saved core.StoredCredential
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing := &credentialRow{}
		selectErr := tx.NewSelect().
			Model(existing).
			Where("principal = ?", key.Principal).
			Where("provider = ?", string(key.Provider)).
			Where("service = ?", string(key.Service)).
			Limit(1).
			Scan(ctx)

		exists := true
		if selectErr != nil {
			if !errors.Is(selectErr, sql.ErrNoRows) {
				return selectErr
			}
			exists = false
		}

		currentVersion := 0
		if exists {
			currentVersion = existing.Version
		}
		if stored.Version != currentVersion {
			return fmt.Errorf(
				"%w: %s is at version %d, write expected %d",
				core.ErrVersionConflict, key, currentVersion, stored.Version,
			)
		}

		if exists {
			next := *existing
			next.Payload = payload
			next.PayloadFormat = s.payloadFormat()
			next.PayloadVersion = s.payloadVersion()
			next.Encrypted = encrypted
			next.ExpiresAt = record.ExpiresAt.UTC()
			next.Scopes = append([]string(nil), record.Scopes...)
			next.Version = currentVersion + 1
			next.UpdatedAt = now

			result, updateErr := tx.NewUpdate().
				Model(&next).
				WherePK().
				Where("version = ?", currentVersion).
				Exec(ctx)
			if updateErr != nil {
				return updateErr
			}
			affected, rowsErr := result.RowsAffected()
			if rowsErr != nil {
				return rowsErr
			}
			// A writer that committed between our read and this update
			// loses the guard; surface it as a conflict, not silence.
			if affected == 0 {
				return fmt.Errorf("%w: concurrent write on %s", core.ErrVersionConflict, key)
			}
		} else {
			row := &credentialRow{
				ID:             uuid.NewString(),
				Principal:      key.Principal,
				Provider:       string(key.Provider),
				Service:        string(key.Service),
				Payload:        payload,
				PayloadFormat:  s.payloadFormat(),
				PayloadVersion: s.payloadVersion(),
				Encrypted:      encrypted,
				ExpiresAt:      record.ExpiresAt.UTC(),
				Scopes:         append([]string(nil), record.Scopes...),
				Version:        1,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, createErr := s.repo.CreateTx(ctx, tx, row); createErr != nil {
				return createErr
			}
		}

		saved = core.StoredCredential{
			Record:    record.Clone(),
			Version:   currentVersion + 1,
			UpdatedAt: now,
		}
		return nil
	})
	if err != nil {
		return core.StoredCredential{}, err
	}
	return saved, nil
}

func (s *CredentialStore) rowToStored(ctx context.Context, row *credentialRow) (core.StoredCredential, error) {
	if row == nil {
		return core.StoredCredential{}, fmt.Errorf("sqlstore: credential row is nil")
	}
	payload := row.Payload
	if row.Encrypted {
		if s.secrets == nil {
			return core.StoredCredential{}, fmt.Errorf("sqlstore: payload is encrypted but no secret provider is configured")
		}
		decrypted, err := s.secrets.Decrypt(ctx, payload)
		if err != nil {
			return core.StoredCredential{}, fmt.Errorf("sqlstore: decrypt credential payload: %w", err)
		}
		payload = decrypted
	}
	record, err := s.activeCodec().Decode(payload)
	if err != nil {
		return core.StoredCredential{}, err
	}
	return core.StoredCredential{
		Record:    record,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *CredentialStore) encodePayload(ctx context.Context, record core.CredentialRecord) ([]byte, bool, error) {
	payload, err := s.activeCodec().Encode(record)
	if err != nil {
		return nil, false, err
	}
	if s.secrets == nil {
		return payload, false, nil
	}
	encrypted, err := s.secrets.Encrypt(ctx, payload)
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: encrypt credential payload: %w", err)
	}
	return encrypted, true, nil
}

func (s *CredentialStore) activeCodec() core.CredentialCodec {
	if s == nil || s.codec == nil {
		return core.JSONCredentialCodec{}
	}
	return s.codec
}

func (s *CredentialStore) payloadFormat() string {
	return s.activeCodec().Format()
}

func (s *CredentialStore) payloadVersion() int {
	return s.activeCodec().Version()
}
