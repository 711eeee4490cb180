// Package providers contains the generic OAuth2 authorization-code flow
// adapter plus provider-specific constructors in subpackages.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-credentials/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20 // 1 MiB
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Token is the parsed token-endpoint response. Raw holds the decoded
// payload as received so stores can keep the provider-native shape.
type Token struct {
	AccessToken      string
	TokenType        string
	RefreshToken     string
	Scope            string
	ExpiresIn        int64
	IDToken          string
	ErrorCode        string
	ErrorDescription string
	Raw              map[string]any
}

// PrincipalResolver derives the stable principal identity from a token
// response. Exchange fails when no principal can be resolved.
type PrincipalResolver func(ctx context.Context, token Token) (string, error)

type OAuth2Config struct {
	Provider            core.Provider
	AuthURL             string
	TokenURL            string
	ClientID            string
	ClientSecret        string
	ClientSecretInBody  bool
	ExtraAuthParams     map[string]string
	TokenRequestTimeout time.Duration
	Now                 func() time.Time
	HTTPClient          HTTPDoer
	PrincipalResolver   PrincipalResolver
}

// OAuth2Adapter implements core.FlowAdapter for any provider speaking the
// standard authorization-code flow. It is stateless; all flow context
// arrives in the request.
type OAuth2Adapter struct {
	cfg        OAuth2Config
	httpClient HTTPDoer
}

func NewOAuth2Adapter(cfg OAuth2Config) (*OAuth2Adapter, error) {
	cfg.Provider = cfg.Provider.Normalized()
	if err := cfg.Provider.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.AuthURL) == "" {
		return nil, fmt.Errorf("providers: auth url is required for provider %q", cfg.Provider)
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, fmt.Errorf("providers: token url is required for provider %q", cfg.Provider)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("providers: client id is required for provider %q", cfg.Provider)
	}
	if cfg.PrincipalResolver == nil {
		return nil, fmt.Errorf("providers: principal resolver is required for provider %q", cfg.Provider)
	}

	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	if cfg.TokenRequestTimeout <= 0 {
		cfg.TokenRequestTimeout = defaultTokenRequestTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time {
			return time.Now().UTC()
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.TokenRequestTimeout}
	}

	return &OAuth2Adapter{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

func (a *OAuth2Adapter) Provider() core.Provider {
	if a == nil {
		return ""
	}
	return a.cfg.Provider
}

func (a *OAuth2Adapter) BeginAuth(_ context.Context, req core.BeginAuthRequest) (core.BeginAuthResponse, error) {
	if a == nil {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: state is required")
	}
	if len(req.Scopes) == 0 {
		return core.BeginAuthResponse{}, fmt.Errorf("providers: scopes are required")
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", a.cfg.ClientID)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		values.Set("redirect_uri", redirectURI)
	}
	values.Set("scope", strings.Join(req.Scopes, " "))
	values.Set("state", state)
	for key, value := range a.cfg.ExtraAuthParams {
		if strings.TrimSpace(key) == "" {
			continue
		}
		values.Set(key, value)
	}

	authURL := a.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		authURL += "&" + values.Encode()
	} else {
		authURL += "?" + values.Encode()
	}

	metadata := cloneMetadata(req.Metadata)
	metadata["provider"] = string(a.cfg.Provider)
	metadata["token_url"] = a.cfg.TokenURL

	return core.BeginAuthResponse{
		URL:      authURL,
		State:    state,
		Scopes:   append([]string(nil), req.Scopes...),
		Metadata: metadata,
	}, nil
}

func (a *OAuth2Adapter) ExchangeCode(ctx context.Context, req core.ExchangeRequest) (core.CredentialRecord, error) {
	if a == nil {
		return core.CredentialRecord{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	if req.Payload.Denied() {
		return core.CredentialRecord{}, fmt.Errorf("%w: %s", core.ErrUserDeniedConsent, describeCallbackError(req.Payload))
	}
	if strings.TrimSpace(req.Payload.Error) != "" {
		return core.CredentialRecord{}, fmt.Errorf("%w: provider returned %s", core.ErrExchangeFailed, describeCallbackError(req.Payload))
	}
	code := strings.TrimSpace(req.Payload.Code)
	if code == "" {
		return core.CredentialRecord{}, fmt.Errorf("%w: callback code is required", core.ErrExchangeFailed)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	if redirectURI := strings.TrimSpace(req.RedirectURI); redirectURI != "" {
		form.Set("redirect_uri", redirectURI)
	}

	token, err := a.fetchToken(ctx, form)
	if err != nil {
		return core.CredentialRecord{}, wrapTokenError(core.ErrExchangeFailed, err)
	}

	principal, err := a.cfg.PrincipalResolver(ctx, token)
	if err != nil {
		return core.CredentialRecord{}, fmt.Errorf("%w: resolve principal: %w", core.ErrExchangeFailed, err)
	}
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return core.CredentialRecord{}, fmt.Errorf("%w: principal resolver returned an empty principal", core.ErrExchangeFailed)
	}

	granted := parseScopeList(token.Scope)
	if len(granted) == 0 {
		granted = append([]string(nil), req.Scopes...)
	}

	now := a.cfg.Now().UTC()
	return core.CredentialRecord{
		Principal:    principal,
		Provider:     a.cfg.Provider,
		Service:      req.Service.Normalized(),
		AccessToken:  strings.TrimSpace(token.AccessToken),
		RefreshToken: strings.TrimSpace(token.RefreshToken),
		ExpiresAt:    resolveExpiresAt(now, token.ExpiresIn),
		Scopes:       granted,
		Raw:          token.Raw,
	}, nil
}

func (a *OAuth2Adapter) Refresh(ctx context.Context, record core.CredentialRecord) (core.CredentialRecord, error) {
	if a == nil {
		return core.CredentialRecord{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	refreshToken := strings.TrimSpace(record.RefreshToken)
	if refreshToken == "" {
		return core.CredentialRecord{}, fmt.Errorf("%w: refresh token is required", core.ErrRefreshFailed)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	if len(record.Scopes) > 0 {
		form.Set("scope", strings.Join(record.Scopes, " "))
	}

	token, err := a.fetchToken(ctx, form)
	if err != nil {
		return core.CredentialRecord{}, wrapTokenError(core.ErrRefreshFailed, err)
	}

	now := a.cfg.Now().UTC()
	refreshed := record.Clone()
	refreshed.AccessToken = strings.TrimSpace(token.AccessToken)
	if next := strings.TrimSpace(token.RefreshToken); next != "" {
		refreshed.RefreshToken = next
	}
	refreshed.ExpiresAt = resolveExpiresAt(now, token.ExpiresIn)
	if scopes := parseScopeList(token.Scope); len(scopes) > 0 {
		refreshed.Scopes = scopes
	}
	if token.Raw != nil {
		refreshed.Raw = token.Raw
	}
	return refreshed, nil
}

func (a *OAuth2Adapter) fetchToken(ctx context.Context, form url.Values) (Token, error) {
	if a == nil {
		return Token{}, fmt.Errorf("providers: oauth2 adapter is nil")
	}
	if a.httpClient == nil {
		return Token{}, fmt.Errorf("providers: oauth2 http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	values := url.Values{}
	for key, items := range form {
		if strings.TrimSpace(key) == "" {
			continue
		}
		for _, item := range items {
			values.Add(key, strings.TrimSpace(item))
		}
	}
	values.Set("client_id", a.cfg.ClientID)
	if a.cfg.ClientSecretInBody && a.cfg.ClientSecret != "" {
		values.Set("client_secret", a.cfg.ClientSecret)
	}

	requestCtx := ctx
	cancel := func() {}
	if a.cfg.TokenRequestTimeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, a.cfg.TokenRequestTimeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		a.cfg.TokenURL,
		strings.NewReader(values.Encode()),
	)
	if err != nil {
		return Token{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if !a.cfg.ClientSecretInBody && a.cfg.ClientSecret != "" {
		httpReq.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	}

	response, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Token{}, fmt.Errorf("providers: token request failed: %w", err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return Token{}, fmt.Errorf("providers: read token response: %w", readErr)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return Token{}, fmt.Errorf("providers: token response exceeds %d bytes", maxTokenResponseBodyBytes)
	}

	token, parseErr := parseToken(body, response.Header.Get("Content-Type"))
	if parseErr != nil {
		return Token{}, fmt.Errorf("providers: decode token response: %w", parseErr)
	}
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return Token{}, fmt.Errorf(
			"providers: token endpoint error (%d): %s",
			response.StatusCode,
			describeTokenError(token),
		)
	}
	if token.ErrorCode != "" {
		return Token{}, fmt.Errorf("providers: token endpoint error: %s", describeTokenError(token))
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return Token{}, fmt.Errorf("providers: token endpoint response missing access token")
	}
	return token, nil
}

func wrapTokenError(sentinel error, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: token request timed out: %w", sentinel, err)
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

func describeTokenError(token Token) string {
	if strings.TrimSpace(token.ErrorDescription) != "" {
		return strings.TrimSpace(token.ErrorDescription)
	}
	if strings.TrimSpace(token.ErrorCode) != "" {
		return strings.TrimSpace(token.ErrorCode)
	}
	return "unknown error"
}

func describeCallbackError(payload core.CallbackPayload) string {
	description := strings.TrimSpace(payload.ErrorDescription)
	code := strings.TrimSpace(payload.Error)
	if description == "" {
		return code
	}
	return code + " (" + description + ")"
}

func parseToken(body []byte, contentType string) (Token, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(contentType, "json") {
		return parseTokenJSON(body)
	}
	if strings.Contains(contentType, "x-www-form-urlencoded") || strings.Contains(contentType, "text/plain") {
		return parseTokenForm(body)
	}
	if token, err := parseTokenJSON(body); err == nil {
		return token, nil
	}
	return parseTokenForm(body)
}

func parseTokenJSON(body []byte) (Token, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Token{}, fmt.Errorf("empty payload")
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Token{}, err
	}
	return Token{
		AccessToken:      readAnyString(decoded["access_token"]),
		TokenType:        readAnyString(decoded["token_type"]),
		RefreshToken:     readAnyString(decoded["refresh_token"]),
		Scope:            readAnyString(decoded["scope"]),
		ExpiresIn:        readAnyInt64(decoded["expires_in"]),
		IDToken:          readAnyString(decoded["id_token"]),
		ErrorCode:        readAnyString(decoded["error"]),
		ErrorDescription: readAnyString(decoded["error_description"]),
		Raw:              decoded,
	}, nil
}

func parseTokenForm(body []byte) (Token, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Token{}, fmt.Errorf("empty payload")
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return Token{}, err
	}
	expiresIn, _ := strconv.ParseInt(strings.TrimSpace(values.Get("expires_in")), 10, 64)
	raw := make(map[string]any, len(values))
	for key := range values {
		raw[key] = values.Get(key)
	}
	return Token{
		AccessToken:      strings.TrimSpace(values.Get("access_token")),
		TokenType:        strings.TrimSpace(values.Get("token_type")),
		RefreshToken:     strings.TrimSpace(values.Get("refresh_token")),
		Scope:            strings.TrimSpace(values.Get("scope")),
		ExpiresIn:        expiresIn,
		IDToken:          strings.TrimSpace(values.Get("id_token")),
		ErrorCode:        strings.TrimSpace(values.Get("error")),
		ErrorDescription: strings.TrimSpace(values.Get("error_description")),
		Raw:              raw,
	}, nil
}

// resolveExpiresAt pins a response without expires_in to now: a token of
// unknown lifetime is treated as already expired rather than guessed at.
func resolveExpiresAt(now time.Time, expiresIn int64) time.Time {
	if expiresIn <= 0 {
		return now
	}
	return now.Add(time.Duration(expiresIn) * time.Second)
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
		floatParsed, floatErr := typed.Float64()
		if floatErr == nil {
			return int64(floatParsed)
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

func cloneMetadata(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}

var _ core.FlowAdapter = (*OAuth2Adapter)(nil)
