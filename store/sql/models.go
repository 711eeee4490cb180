package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// credentialRow persists one credential per (principal, provider, service)
// key. The token material lives in the encoded (and optionally encrypted)
// payload; expires_at and scopes are denormalized for queries only.
type credentialRow struct {
	bun.BaseModel `bun:"table:credential_records,alias:cr"`

	ID             string    `bun:"id,pk"`
	Principal      string    `bun:"principal,notnull"`
	Provider       string    `bun:"provider,notnull"`
	Service        string    `bun:"service,notnull"`
	Payload        []byte    `bun:"payload,notnull"`
	PayloadFormat  string    `bun:"payload_format,notnull"`
	PayloadVersion int       `bun:"payload_version,notnull"`
	Encrypted      bool      `bun:"encrypted,notnull"`
	ExpiresAt      time.Time `bun:"expires_at,notnull"`
	Scopes         []string  `bun:"scopes,type:jsonb,notnull"`
	Version        int       `bun:"version,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
