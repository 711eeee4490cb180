package core

import "time"

// DefaultRefreshSkew is the safety margin subtracted from a credential's
// expiry when judging validity. A token inside the margin is treated as
// already expired so callers never receive one about to die mid-use.
const DefaultRefreshSkew = 2 * time.Minute

// CredentialValid reports whether the record can be served without a
// refresh: now must be strictly before ExpiresAt minus the skew.
func CredentialValid(now time.Time, record CredentialRecord, skew time.Duration) bool {
	if skew < 0 {
		skew = 0
	}
	if now.IsZero() {
		now = time.Now()
	}
	if record.ExpiresAt.IsZero() {
		return false
	}
	return now.UTC().Before(record.ExpiresAt.UTC().Add(-skew))
}

// DeriveCredentialState computes the lifecycle state for a read. Stores
// only ever hold active records; absence means unauthorized and a stale
// expiry means expired. RevokedOrInvalid is asserted by the caller when a
// refresh is rejected by the provider, never persisted.
func DeriveCredentialState(now time.Time, stored StoredCredential, found bool, skew time.Duration) CredentialState {
	if !found {
		return CredentialStateUnauthorized
	}
	if CredentialValid(now, stored.Record, skew) {
		return CredentialStateActive
	}
	return CredentialStateExpired
}
