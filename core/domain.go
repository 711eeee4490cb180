package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidProvider        = errors.New("core: invalid provider")
	ErrInvalidService         = errors.New("core: invalid service")
	ErrInvalidStateTransition = errors.New("core: invalid credential state transition")
)

// Provider identifies an external identity/token provider.
type Provider string

const (
	ProviderGCP Provider = "gcp"
)

func (p Provider) Normalized() Provider {
	return Provider(strings.ToLower(strings.TrimSpace(string(p))))
}

func (p Provider) Validate() error {
	switch p.Normalized() {
	case ProviderGCP:
		return nil
	case "":
		return fmt.Errorf("%w: provider is required", ErrInvalidProvider)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidProvider, string(p))
	}
}

// Service identifies the downstream capability the credential grants
// access to (for example IMAP mailbox access via Gmail).
type Service string

const (
	ServiceIMAP Service = "imap"
)

func (s Service) Normalized() Service {
	return Service(strings.ToLower(strings.TrimSpace(string(s))))
}

func (s Service) Validate() error {
	switch s.Normalized() {
	case ServiceIMAP:
		return nil
	case "":
		return fmt.Errorf("%w: service is required", ErrInvalidService)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidService, string(s))
	}
}

// CredentialState is derived from store contents at read time; the store
// never persists expired or revoked markers.
type CredentialState string

const (
	CredentialStateUnauthorized     CredentialState = "unauthorized"
	CredentialStateActive           CredentialState = "active"
	CredentialStateExpired          CredentialState = "expired"
	CredentialStateRevokedOrInvalid CredentialState = "revoked_or_invalid"
)

var allowedCredentialTransitions = map[CredentialState][]CredentialState{
	CredentialStateUnauthorized:     {CredentialStateActive},
	CredentialStateActive:           {CredentialStateExpired, CredentialStateRevokedOrInvalid},
	CredentialStateExpired:          {CredentialStateActive, CredentialStateRevokedOrInvalid},
	CredentialStateRevokedOrInvalid: {},
}

// TransitionTo validates the lifecycle edge from s to next. Same-state
// transitions are treated as no-ops.
func (s CredentialState) TransitionTo(next CredentialState) (CredentialState, error) {
	if s == next {
		return next, nil
	}
	for _, candidate := range allowedCredentialTransitions[s] {
		if candidate == next {
			return next, nil
		}
	}
	return s, fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, s, next)
}

// CredentialKey is the lookup identity of a stored credential. One record
// exists per (principal, provider, service) triple.
type CredentialKey struct {
	Principal string
	Provider  Provider
	Service   Service
}

func (k CredentialKey) Normalized() CredentialKey {
	return CredentialKey{
		Principal: strings.TrimSpace(k.Principal),
		Provider:  k.Provider.Normalized(),
		Service:   k.Service.Normalized(),
	}
}

func (k CredentialKey) Validate() error {
	if strings.TrimSpace(k.Principal) == "" {
		return fmt.Errorf("core: principal is required")
	}
	if err := k.Provider.Validate(); err != nil {
		return err
	}
	return k.Service.Validate()
}

func (k CredentialKey) String() string {
	normalized := k.Normalized()
	return normalized.Principal + "|" + string(normalized.Provider) + "|" + string(normalized.Service)
}

// CredentialRecord is the canonical credential shape shared by adapters,
// stores, and the manager. ExpiresAt is always absolute; a provider
// response without an expiry is normalized to "expires now" so the next
// read forces a refresh instead of serving a token of unknown lifetime.
type CredentialRecord struct {
	Principal    string
	Provider     Provider
	Service      Service
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scopes       []string
	Raw          map[string]any
}

func (r CredentialRecord) Key() CredentialKey {
	return CredentialKey{
		Principal: r.Principal,
		Provider:  r.Provider,
		Service:   r.Service,
	}.Normalized()
}

func (r CredentialRecord) Validate() error {
	if err := r.Key().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return fmt.Errorf("core: access token is required")
	}
	if r.ExpiresAt.IsZero() {
		return fmt.Errorf("core: expires_at is required")
	}
	return nil
}

// Normalized trims identity fields and pins a zero expiry to now.
func (r CredentialRecord) Normalized(now time.Time) CredentialRecord {
	if now.IsZero() {
		now = time.Now()
	}
	out := r.Clone()
	out.Principal = strings.TrimSpace(out.Principal)
	out.Provider = out.Provider.Normalized()
	out.Service = out.Service.Normalized()
	out.AccessToken = strings.TrimSpace(out.AccessToken)
	out.RefreshToken = strings.TrimSpace(out.RefreshToken)
	if out.ExpiresAt.IsZero() {
		out.ExpiresAt = now.UTC()
	} else {
		out.ExpiresAt = out.ExpiresAt.UTC()
	}
	return out
}

func (r CredentialRecord) Clone() CredentialRecord {
	out := r
	out.Scopes = append([]string(nil), r.Scopes...)
	out.Raw = copyAnyMap(r.Raw)
	return out
}

// StoredCredential is a CredentialRecord plus store bookkeeping. Version
// participates in compare-and-swap writes: Put succeeds only when the
// caller's Version matches the version currently persisted (zero for a
// record that does not exist yet).
type StoredCredential struct {
	Record    CredentialRecord
	Version   int
	UpdatedAt time.Time
}

func (s StoredCredential) Clone() StoredCredential {
	out := s
	out.Record = s.Record.Clone()
	return out
}

func copyAnyMap(values map[string]any) map[string]any {
	if values == nil {
		return nil
	}
	out := make(map[string]any, len(values))
	for key, value := range values {
		out[key] = value
	}
	return out
}
