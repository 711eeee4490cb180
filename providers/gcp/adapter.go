// Package gcp builds the Google flow adapter: Google endpoints, offline
// access, and principal resolution from the ID token.
package gcp

import (
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
	"github.com/goliatone/go-credentials/providers"
)

const (
	DefaultAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
)

type Config struct {
	ClientID            string
	ClientSecret        string
	AuthURL             string
	TokenURL            string
	TokenRequestTimeout time.Duration
	HTTPClient          providers.HTTPDoer
	Now                 func() time.Time
	PrincipalResolver   providers.PrincipalResolver
}

// New builds the GCP adapter. Offline access is always requested so the
// first consent yields a refresh token, and prompt=consent forces Google
// to re-issue one when the user re-authorizes.
func New(cfg Config) (*providers.OAuth2Adapter, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("gcp: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("gcp: client secret is required")
	}

	authURL := strings.TrimSpace(cfg.AuthURL)
	if authURL == "" {
		authURL = DefaultAuthURL
	}
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	resolver := cfg.PrincipalResolver
	if resolver == nil {
		resolver = providers.IDTokenPrincipal
	}

	return providers.NewOAuth2Adapter(providers.OAuth2Config{
		Provider:     core.ProviderGCP,
		AuthURL:      authURL,
		TokenURL:     tokenURL,
		ClientID:     strings.TrimSpace(cfg.ClientID),
		ClientSecret: strings.TrimSpace(cfg.ClientSecret),
		// Google expects the secret in the request body, not basic auth.
		ClientSecretInBody: true,
		ExtraAuthParams: map[string]string{
			"access_type":            "offline",
			"include_granted_scopes": "true",
			"prompt":                 "consent",
		},
		TokenRequestTimeout: cfg.TokenRequestTimeout,
		Now:                 cfg.Now,
		HTTPClient:          cfg.HTTPClient,
		PrincipalResolver:   resolver,
	})
}
