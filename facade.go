// Package credentials manages OAuth credential lifecycles: authorization
// initiation, callback completion, and skew-aware token reads with
// single-flight refresh. The root package re-exports the core entry
// points; see core, providers, and the store backends for the full API.
package credentials

import "github.com/goliatone/go-credentials/core"

type (
	Manager          = core.Manager
	Config           = core.Config
	Option           = core.Option
	Provider         = core.Provider
	Service          = core.Service
	CredentialRecord = core.CredentialRecord
	StoredCredential = core.StoredCredential
	FlowAdapter      = core.FlowAdapter
	CredentialStore  = core.CredentialStore
)

const (
	ProviderGCP = core.ProviderGCP
	ServiceIMAP = core.ServiceIMAP
)

// New builds a lifecycle manager. See core.NewManager for the option set.
func New(cfg Config, opts ...Option) (*Manager, error) {
	return core.NewManager(cfg, opts...)
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func DefaultScopeRegistry() *core.ScopeRegistry {
	return core.DefaultScopeRegistry()
}
