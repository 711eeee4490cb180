package core

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// BeginAuthRequest carries everything an adapter needs to build an
// authorization redirect URL.
type BeginAuthRequest struct {
	Service     Service
	RedirectURI string
	State       string
	Scopes      []string
	Metadata    map[string]any
}

type BeginAuthResponse struct {
	URL      string
	State    string
	Scopes   []string
	Metadata map[string]any
}

// CallbackPayload is the provider redirect back to us, already parsed out
// of the transport layer.
type CallbackPayload struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Denied reports whether the user declined the consent screen.
func (p CallbackPayload) Denied() bool {
	return p.Error == "access_denied"
}

type ExchangeRequest struct {
	Service     Service
	RedirectURI string
	Scopes      []string
	Payload     CallbackPayload
	Metadata    map[string]any
}

// FlowAdapter implements one provider's authorization-code flow. Adapters
// are stateless: every call carries the full context it needs, and Refresh
// never touches a store.
type FlowAdapter interface {
	Provider() Provider
	BeginAuth(ctx context.Context, req BeginAuthRequest) (BeginAuthResponse, error)
	ExchangeCode(ctx context.Context, req ExchangeRequest) (CredentialRecord, error)
	Refresh(ctx context.Context, record CredentialRecord) (CredentialRecord, error)
}

type Registry interface {
	Register(adapter FlowAdapter) error
	Get(provider Provider) (FlowAdapter, bool)
	List() []FlowAdapter
}

// CredentialStore persists one StoredCredential per CredentialKey. Put is
// a full versioned replace: the write succeeds only when the incoming
// Version matches the persisted one (zero for absent records), otherwise
// ErrVersionConflict. The store returns the saved credential with its new
// Version.
type CredentialStore interface {
	Get(ctx context.Context, key CredentialKey) (StoredCredential, bool, error)
	Put(ctx context.Context, stored StoredCredential) (StoredCredential, error)
}

// OAuthStateStore tracks pending authorization states for CSRF validation.
// Consume is single-use: a state can be redeemed at most once.
type OAuthStateStore interface {
	Save(ctx context.Context, record OAuthStateRecord) error
	Consume(ctx context.Context, state string) (OAuthStateRecord, error)
}

// SecretProvider encrypts credential payloads at rest. Stores apply it to
// the encoded payload before persisting and after loading.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// CredentialCodec serializes CredentialRecord values for storage. Codecs
// must round-trip every field, including the absence of a refresh token.
type CredentialCodec interface {
	Format() string
	Version() int
	Encode(record CredentialRecord) ([]byte, error)
	Decode(payload []byte) (CredentialRecord, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// StoreProvider exposes the stores a repository factory builds.
type StoreProvider interface {
	CredentialStore() CredentialStore
}

// RepositoryStoreFactory builds stores from a persistence client.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// RefreshErrorMode selects how GetCredentials reports a failed refresh.
type RefreshErrorMode string

const (
	// RefreshErrorRaise surfaces the refresh failure to the caller.
	RefreshErrorRaise RefreshErrorMode = "raise"
	// RefreshErrorReturnAbsent swallows the failure and reports the
	// credential as absent, as if the principal never authorized.
	RefreshErrorReturnAbsent RefreshErrorMode = "return_absent"
)

type InitiateAuthorizationRequest struct {
	Provider    Provider
	Service     Service
	RedirectURI string
	State       string
	Metadata    map[string]any
}

type CompleteAuthorizationRequest struct {
	Provider    Provider
	Service     Service
	RedirectURI string
	Payload     CallbackPayload
	Metadata    map[string]any
}

type GetCredentialsRequest struct {
	Principal      string
	Provider       Provider
	Service        Service
	OnRefreshError RefreshErrorMode
}

type GetCredentialsResult struct {
	Record    CredentialRecord
	Found     bool
	Refreshed bool
}

// LifecycleManager is the only read/write surface callers use; tokens are
// never read from the store except through GetCredentials.
type LifecycleManager interface {
	InitiateAuthorization(ctx context.Context, req InitiateAuthorizationRequest) (BeginAuthResponse, error)
	CompleteAuthorization(ctx context.Context, req CompleteAuthorizationRequest) (StoredCredential, error)
	GetCredentials(ctx context.Context, req GetCredentialsRequest) (GetCredentialsResult, error)
}
