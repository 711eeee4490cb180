package core

import (
	"fmt"
	"sort"
	"strings"
)

// GCPIMAPScopes is the fixed grant requested for Gmail access over IMAP.
// Order matters: callers and tests rely on the registry returning scopes
// exactly as declared.
var GCPIMAPScopes = []string{
	"openid",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
	"https://www.googleapis.com/auth/gmail.labels",
	"https://www.googleapis.com/auth/gmail.metadata",
	"https://www.googleapis.com/auth/gmail.modify",
}

type ScopeMapping struct {
	Provider Provider
	Service  Service
	Scopes   []string
}

type scopeKey struct {
	provider Provider
	service  Service
}

// ScopeRegistry is a static, total mapping from (provider, service) to the
// ordered scope list requested during authorization. The mapping is
// validated once at construction; lookups never consult configuration.
type ScopeRegistry struct {
	entries map[scopeKey][]string
}

func NewScopeRegistry(mappings ...ScopeMapping) (*ScopeRegistry, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("core: scope registry requires at least one mapping")
	}
	entries := make(map[scopeKey][]string, len(mappings))
	for _, mapping := range mappings {
		if err := mapping.Provider.Validate(); err != nil {
			return nil, err
		}
		if err := mapping.Service.Validate(); err != nil {
			return nil, err
		}
		scopes := dedupeScopes(mapping.Scopes)
		if len(scopes) == 0 {
			return nil, fmt.Errorf("core: scope mapping %s/%s has no scopes", mapping.Provider, mapping.Service)
		}
		key := scopeKey{provider: mapping.Provider.Normalized(), service: mapping.Service.Normalized()}
		if _, exists := entries[key]; exists {
			return nil, fmt.Errorf("core: duplicate scope mapping %s/%s", key.provider, key.service)
		}
		entries[key] = scopes
	}
	return &ScopeRegistry{entries: entries}, nil
}

// MustScopeRegistry builds a registry or panics. Scope mappings are wired
// at process start, so a bad mapping should stop the program immediately.
func MustScopeRegistry(mappings ...ScopeMapping) *ScopeRegistry {
	registry, err := NewScopeRegistry(mappings...)
	if err != nil {
		panic(err)
	}
	return registry
}

func DefaultScopeRegistry() *ScopeRegistry {
	return MustScopeRegistry(ScopeMapping{
		Provider: ProviderGCP,
		Service:  ServiceIMAP,
		Scopes:   GCPIMAPScopes,
	})
}

// ScopesFor returns a copy of the scope list for the pair, in declaration
// order. Unknown pairs fail with ErrUnsupportedCombination.
func (r *ScopeRegistry) ScopesFor(provider Provider, service Service) ([]string, error) {
	if r == nil || len(r.entries) == 0 {
		return nil, fmt.Errorf("core: scope registry is not configured")
	}
	scopes, ok := r.entries[scopeKey{provider: provider.Normalized(), service: service.Normalized()}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedCombination, provider, service)
	}
	return append([]string(nil), scopes...), nil
}

// Mappings lists the registered pairs sorted by provider then service.
func (r *ScopeRegistry) Mappings() []ScopeMapping {
	if r == nil {
		return nil
	}
	out := make([]ScopeMapping, 0, len(r.entries))
	for key, scopes := range r.entries {
		out = append(out, ScopeMapping{
			Provider: key.provider,
			Service:  key.service,
			Scopes:   append([]string(nil), scopes...),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Service < out[j].Service
	})
	return out
}

// dedupeScopes trims and removes duplicates while preserving declaration
// order. Scopes are case-sensitive identifiers; no lowercasing.
func dedupeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}
